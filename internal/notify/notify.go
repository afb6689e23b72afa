// Package notify publishes corporate-action alerts and run summaries.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/config"
	"github.com/wonny/quantsource/pkg/logger"
)

// Event types
const (
	EventCorporateAction = "CORPORATE_ACTION"
	EventRunCompleted    = "RUN_COMPLETED"
)

// Event is the message envelope on the alert topic
type Event struct {
	EventType       string                     `json:"event_type"`
	Key             string                     `json:"key"`
	Timestamp       time.Time                  `json:"timestamp"`
	CorporateAction *contracts.CorporateAction `json:"corporate_action,omitempty"`
	Run             *RunDigest                 `json:"run,omitempty"`
}

// RunDigest is the published form of a run summary
type RunDigest struct {
	RunID            string                       `json:"run_id"`
	Date             string                       `json:"date"`
	Succeeded        int                          `json:"succeeded"`
	Rebuilt          int                          `json:"rebuilt"`
	CorporateActions []string                     `json:"corporate_actions,omitempty"`
	Failed           []contracts.InstrumentResult `json:"failed,omitempty"`
	DurationMs       int64                        `json:"duration_ms"`
}

func digest(s *contracts.RunSummary) *RunDigest {
	return &RunDigest{
		RunID:            s.RunID,
		Date:             contracts.FormatDate(s.Date),
		Succeeded:        len(s.Succeeded()),
		Rebuilt:          s.Count(contracts.OutcomeRebuilt),
		CorporateActions: s.CorporateActions(),
		Failed:           s.Failed(),
		DurationMs:       s.Duration().Milliseconds(),
	}
}

// Notifier is implemented by every alert channel
type Notifier interface {
	CorporateAction(ctx context.Context, event contracts.CorporateAction) error
	RunCompleted(ctx context.Context, summary *contracts.RunSummary) error
	Close() error
}

// New returns the Kafka notifier when enabled, else a log-only notifier
func New(cfg *config.Config, log *logger.Logger) Notifier {
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		return NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	}
	return NewLog(log)
}

// messageWriter is the subset of *kafka.Writer used here
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to a Kafka topic
// ⭐ SSOT: 알림 채널 (권리락 감지 / 실행 요약)
type Kafka struct {
	writer messageWriter
	topic  string
	logger *logger.Logger
}

// NewKafka creates a Kafka notifier
func NewKafka(brokers []string, topic string, log *logger.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 같은 종목은 같은 파티션
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafka(writer, topic, log)
}

func newKafka(w messageWriter, topic string, log *logger.Logger) *Kafka {
	return &Kafka{
		writer: w,
		topic:  topic,
		logger: log.WithFields(map[string]interface{}{"module": "notify", "topic": topic}),
	}
}

// CorporateAction publishes a detected ex-rights/ex-dividend event
func (k *Kafka) CorporateAction(ctx context.Context, e contracts.CorporateAction) error {
	return k.publish(ctx, Event{
		EventType:       EventCorporateAction,
		Key:             e.Instrument,
		Timestamp:       time.Now(),
		CorporateAction: &e,
	})
}

// RunCompleted publishes a run summary
func (k *Kafka) RunCompleted(ctx context.Context, s *contracts.RunSummary) error {
	return k.publish(ctx, Event{
		EventType: EventRunCompleted,
		Key:       s.RunID,
		Timestamp: time.Now(),
		Run:       digest(s),
	})
}

func (k *Kafka) publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	k.logger.WithFields(map[string]interface{}{
		"event_type": event.EventType,
		"key":        event.Key,
	}).Debug("Event published")
	return nil
}

// Close flushes and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Log writes events to the structured log only
type Log struct {
	logger *logger.Logger
}

// NewLog creates a log-only notifier
func NewLog(log *logger.Logger) *Log {
	return &Log{logger: log.WithField("module", "notify")}
}

// CorporateAction logs the event
func (l *Log) CorporateAction(ctx context.Context, e contracts.CorporateAction) error {
	l.logger.WithFields(map[string]interface{}{
		"instrument": e.Instrument,
		"date":       contracts.FormatDate(e.Date),
		"step":       e.Step,
	}).Info("Corporate action")
	return nil
}

// RunCompleted logs the summary
func (l *Log) RunCompleted(ctx context.Context, s *contracts.RunSummary) error {
	d := digest(s)
	l.logger.WithFields(map[string]interface{}{
		"run_id":            d.RunID,
		"date":              d.Date,
		"succeeded":         d.Succeeded,
		"failed":            len(d.Failed),
		"corporate_actions": len(d.CorporateActions),
	}).Info("Run summary")
	return nil
}

// Close is a no-op
func (l *Log) Close() error { return nil }
