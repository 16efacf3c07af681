package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"pairly-chat-system/models"

	"gorm.io/gorm"
)

// NotifySink drains the notification outbox to the bot gateway's event
// endpoint. Delivery is at-least-once: a row is only marked delivered after a
// 2xx response, so a crash between POST and mark re-sends it.
type NotifySink struct {
	SinkURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewNotifySink(db *gorm.DB) *NotifySink {
	sinkURL := os.Getenv("NOTIFY_SINK_URL")
	if sinkURL == "" {
		log.Fatal("NOTIFY_SINK_URL environment variable is required")
	}
	token := os.Getenv("CHAT_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("CHAT_SERVICE_TOKEN environment variable is required for the notify worker")
	}

	return &NotifySink{
		SinkURL: sinkURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sinkEvent struct {
	ID      uint            `json:"id"`
	UserID  int64           `json:"user_id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (c *NotifySink) deliver(ctx context.Context, note models.Notification) error {
	event := sinkEvent{
		ID:      note.ID,
		UserID:  note.UserID,
		Kind:    note.Kind,
		Payload: json.RawMessage(note.Payload),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.SinkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification sink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sink returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// DrainOnce pushes up to one batch of undelivered notifications.
func (c *NotifySink) DrainOnce(ctx context.Context) {
	var pending []models.Notification
	err := c.DB.Where("delivered_at IS NULL").
		Order("id ASC").
		Limit(100).
		Find(&pending).Error
	if err != nil {
		log.Printf("[Notify] outbox query failed: %v", err)
		return
	}

	for _, note := range pending {
		if err := c.deliver(ctx, note); err != nil {
			log.Printf("[Notify] delivery of notification %d failed: %v", note.ID, err)
			// Leave the row for the next pass; later rows for other users
			// still get a chance.
			continue
		}
		now := time.Now()
		err := c.DB.Model(&models.Notification{}).
			Where("id = ?", note.ID).
			Update("delivered_at", now).Error
		if err != nil {
			log.Printf("[Notify] failed to mark notification %d delivered: %v", note.ID, err)
		}
	}
}

// PollOutbox drains the outbox on an interval until ctx is cancelled.
func PollOutbox(ctx context.Context, client *NotifySink, pollInterval time.Duration) {
	log.Println("Starting notification outbox worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Notification outbox worker stopped.")
			return
		case <-ticker.C:
			client.DrainOnce(ctx)
		}
	}
}
