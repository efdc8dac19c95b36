package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
)

const roomReservationTimeout = 10 * time.Second

// RoomReservationClient books rooms in the facilities system over HTTP.
type RoomReservationClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type roomReservationRequest struct {
	RoomID    int64     `json:"roomId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// NewRoomReservationClient returns nil when no URL is configured.
func NewRoomReservationClient(cfg config.RoomReservationConfig, log *logger.Logger) *RoomReservationClient {
	if !cfg.IsRoomReservationEnabled() {
		return nil
	}

	return &RoomReservationClient{
		baseURL: strings.TrimRight(cfg.GetRoomReservationURL(), "/"),
		apiKey:  cfg.GetRoomReservationAPIKey(),
		http:    &http.Client{Timeout: roomReservationTimeout},
		log:     log,
	}
}

func (c *RoomReservationClient) ReserveRoom(ctx context.Context, roomID int64, start, end time.Time) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal(roomReservationRequest{RoomID: roomID, StartTime: start.UTC(), EndTime: end.UTC()})
	if err != nil {
		return fmt.Errorf("marshal room reservation: %w", err)
	}

	url := fmt.Sprintf("%s/reservations", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("room reservation request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("room reservation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.WithContext(ctx).Info("room reserved", "room_id", roomID, "start", start, "end", end)
	return nil
}
