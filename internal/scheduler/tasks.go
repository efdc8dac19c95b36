package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TaskReserveDoctorSlot = "notifications.doctor_calendar"
	TaskReserveRoom       = "notifications.room_reservation"
	TaskSendConfirmation  = "notifications.email"
)

type ReserveDoctorSlotPayload struct {
	DoctorID  int64     `json:"doctorId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type ReserveRoomPayload struct {
	RoomID    int64     `json:"roomId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type SendConfirmationPayload struct {
	ToEmail string `json:"toEmail"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TaskID returns the asynq task id. It is derived from the payload so the
// same notification enqueued twice collapses into one task.
func (p ReserveDoctorSlotPayload) TaskID() string {
	return fmt.Sprintf("doctor:%d:%d:%d", p.DoctorID, p.StartTime.UnixNano(), p.EndTime.UnixNano())
}

func (p ReserveRoomPayload) TaskID() string {
	return fmt.Sprintf("room:%d:%d:%d", p.RoomID, p.StartTime.UnixNano(), p.EndTime.UnixNano())
}

func (p SendConfirmationPayload) TaskID() string {
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ToEmail+"\x00"+p.Subject+"\x00"+p.Body))
	return "email:" + sum.String()
}

func NewReserveDoctorSlotTask(payload ReserveDoctorSlotPayload) (*asynq.Task, error) {
	return newTask(TaskReserveDoctorSlot, payload)
}

func ParseReserveDoctorSlotPayload(task *asynq.Task) (ReserveDoctorSlotPayload, error) {
	var payload ReserveDoctorSlotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReserveDoctorSlotPayload{}, err
	}
	return payload, nil
}

func NewReserveRoomTask(payload ReserveRoomPayload) (*asynq.Task, error) {
	return newTask(TaskReserveRoom, payload)
}

func ParseReserveRoomPayload(task *asynq.Task) (ReserveRoomPayload, error) {
	var payload ReserveRoomPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReserveRoomPayload{}, err
	}
	return payload, nil
}

func NewSendConfirmationTask(payload SendConfirmationPayload) (*asynq.Task, error) {
	return newTask(TaskSendConfirmation, payload)
}

func ParseSendConfirmationPayload(task *asynq.Task) (SendConfirmationPayload, error) {
	var payload SendConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SendConfirmationPayload{}, err
	}
	return payload, nil
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}
