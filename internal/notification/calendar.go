package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clinic_booking_backend/platform/config"
)

const (
	icsContentType = "text/calendar; charset=utf-8"
	icsTimeLayout  = "20060102T150405Z"
	icsProductID   = "-//clinic-booking//doctor-calendar//EN"
)

// objectWriter is the part of *minio.Client the calendar needs.
type objectWriter interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// CalendarStore publishes one iCalendar object per reserved doctor slot.
// Calendar clients subscribe to the doctor's prefix in the bucket.
type CalendarStore struct {
	client objectWriter
	bucket string
	now    func() time.Time
}

// NewCalendarStore connects to MinIO. It returns nil when MinIO is not configured.
func NewCalendarStore(cfg config.CalendarStorageConfig) (*CalendarStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return newCalendarStore(client, cfg.GetCalendarBucket()), nil
}

func newCalendarStore(client objectWriter, bucket string) *CalendarStore {
	return &CalendarStore{client: client, bucket: bucket, now: time.Now}
}

// EnsureBucketExists creates the calendar bucket if it doesn't exist.
func (s *CalendarStore) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *CalendarStore) ReserveDoctorSlot(ctx context.Context, doctorID int64, start, end time.Time) error {
	if s == nil {
		return nil
	}

	key := slotObjectKey(doctorID, start, end)
	data := []byte(slotEvent(doctorID, start, end, s.now()))

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: icsContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload calendar slot %s: %w", key, err)
	}
	return nil
}

// slotObjectKey is stable for a doctor and window so a retried task
// overwrites the same object.
func slotObjectKey(doctorID int64, start, end time.Time) string {
	return fmt.Sprintf("doctors/%d/%s-%s.ics", doctorID, start.UTC().Format(icsTimeLayout), end.UTC().Format(icsTimeLayout))
}

func slotUID(doctorID int64, start, end time.Time) string {
	name := fmt.Sprintf("doctor:%d:%d:%d", doctorID, start.Unix(), end.Unix())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func slotEvent(doctorID int64, start, end, stamp time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + icsProductID,
		"BEGIN:VEVENT",
		"UID:" + slotUID(doctorID, start, end),
		"DTSTAMP:" + stamp.UTC().Format(icsTimeLayout),
		"DTSTART:" + start.UTC().Format(icsTimeLayout),
		"DTEND:" + end.UTC().Format(icsTimeLayout),
		"SUMMARY:Appointment",
		"STATUS:CONFIRMED",
		"TRANSP:OPAQUE",
		"END:VEVENT",
		"END:VCALENDAR",
	}
	// RFC 5545 requires CRLF line endings.
	return strings.Join(lines, "\r\n") + "\r\n"
}
