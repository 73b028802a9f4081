// Package notify announces generated audio on NATS so other services in the
// pipeline can pick it up.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

var (
	// ErrSubjectEmpty indicates that no subject was configured.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrAudioKeyEmpty indicates a notification without an audio location.
	ErrAudioKeyEmpty = errors.New("audio key cannot be empty")
)

// NatsPublisher publishes an AudioChunkCreatedEvent for every generated clip.
type NatsPublisher struct {
	natsConnection *nats.Conn
	subject        string
	log            *logger.Logger
	now            func() time.Time
}

// NewNatsPublisher creates a publisher on subject.
func NewNatsPublisher(natsConnection *nats.Conn, subject string, log *logger.Logger) (*NatsPublisher, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsPublisher{
		natsConnection: natsConnection,
		subject:        subject,
		log:            log,
		now:            time.Now,
	}, nil
}

// PublishGenerated announces audio generated within a session. The session
// id is the workflow id; the audio path is the audio key.
func (p *NatsPublisher) PublishGenerated(ctx context.Context, sessionID, audioKey string) error {
	if audioKey == "" {
		return ErrAudioKeyEmpty
	}

	event := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  p.now().UTC(),
			WorkflowID: sessionID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		AudioKey:   audioKey,
		PageNumber: 1,
		TotalPages: 1,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audio created event: %w", err)
	}

	err = p.natsConnection.Publish(p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", p.subject, err)
	}

	err = p.natsConnection.FlushWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to flush publish to subject %s: %w", p.subject, err)
	}

	p.log.Info("Published audio created event %s for session %s", event.Header.EventID, sessionID)

	return nil
}
