package email

const (
	subjectConfirmationFallback = "Appointment confirmation"
	titleConfirmation           = "Appointment confirmed"
)
