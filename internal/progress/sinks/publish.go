package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/progress"
)

// Publisher is the subset of the broker clients used by PublishSink.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// EventMessage is the wire form of a progress event.
type EventMessage struct {
	RunID       string `json:"run_id"`
	TS          string `json:"ts"`
	Stage       string `json:"stage"`
	Site        string `json:"site,omitempty"`
	URL         string `json:"url,omitempty"`
	StatusClass string `json:"status_class,omitempty"`
	DurMillis   int64  `json:"dur_ms,omitempty"`
	Note        string `json:"note,omitempty"`
}

// PublishSink forwards ingestion milestones to a message broker so downstream
// consumers can react to catalog updates. Page fetch events are skipped to
// keep the topic volume proportional to catalog changes.
type PublishSink struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink for the provided publisher and topic.
func NewPublishSink(pub Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes run lifecycle and item events. It respects ctx deadlines
// and returns the first publish error verbatim.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePageFetched:
			continue
		default:
		}
		msg := EventMessage{
			RunID:       evt.RunID.String(),
			TS:          evt.TS.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Stage:       string(evt.Stage),
			Site:        evt.Site,
			URL:         evt.URL,
			StatusClass: string(evt.StatusClass),
			DurMillis:   evt.Dur.Milliseconds(),
			Note:        evt.Note,
		}
		id, err := s.pub.Publish(ctx, s.topic, msg)
		if err != nil {
			return fmt.Errorf("publish progress event: %w", err)
		}
		s.logger.Debug("published progress event",
			zap.String("message_id", id),
			zap.String("stage", msg.Stage),
			zap.String("site", msg.Site))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
