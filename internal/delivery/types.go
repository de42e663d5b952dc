package delivery

import (
	"context"
	"errors"
	"time"

	"alarmd/internal/eventbus"
	logx "alarmd/pkg/logx"
)

var (
	ErrQueueFull = errors.New("delivery: queue full")
	ErrStopped   = errors.New("delivery: stopped")
)

// Config controls the pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	HistorySize     int
}

// Sink presents a fired alarm to the user (sound, banner, webhook, ...).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, f eventbus.AlarmFired) error
}

// HistoryItem is one delivered firing.
type HistoryItem struct {
	At      time.Time
	AlarmID string
	Label   string
	Snooze  bool
	Backend string
	Err     string
}

// LogSink writes firings to the structured log.
type LogSink struct {
	Log logx.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, f eventbus.AlarmFired) error {
	log := s.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	label := f.Label
	if label == "" {
		label = "Alarm"
	}
	log.Info("ALARM "+label,
		logx.String("alarm", f.AlarmID),
		logx.Int("slot", f.Slot),
		logx.Bool("snooze", f.Snooze),
		logx.Time("due", f.At),
	)
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f eventbus.AlarmFired) error

func (SinkFunc) Name() string { return "func" }

func (fn SinkFunc) Deliver(ctx context.Context, f eventbus.AlarmFired) error { return fn(ctx, f) }
