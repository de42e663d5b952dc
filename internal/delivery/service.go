package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"alarmd/internal/eventbus"
	"alarmd/internal/metrics"
	rtsup "alarmd/internal/runtime/supervisor"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

// Service implements queue + worker pool + rate limit + retry + dedup for
// fired alarms. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	sinks []Sink

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan eventbus.AlarmFired
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		sinks: sinks,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps rate, dedup and history settings. Queue size and worker count
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start launches the workers. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan eventbus.AlarmFired, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("delivery.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping || c.Err() != nil {
				return context.Canceled
			}
			return errors.New("delivery worker exited unexpectedly")
		}, 250*time.Millisecond, 10*time.Second)
	}
	s.log.Info("delivery started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop stops intake and drains the queue until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
	s.log.Info("delivery stopped")
}

// Handle is a trigger.FireFunc. It never blocks on the queue.
func (s *Service) Handle(f trigger.Fired) {
	if err := s.Submit(context.Background(), f); err != nil {
		s.log.Warn("fired alarm not delivered", logx.String("alarm", f.Payload.AlarmID), logx.Err(err))
	}
}

// Submit enqueues one fired request. Duplicate firings within the dedup
// window are dropped silently.
func (s *Service) Submit(ctx context.Context, f trigger.Fired) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := eventbus.AlarmFired{
		AlarmID:   f.Payload.AlarmID,
		RequestID: f.ID.String(),
		Label:     f.Payload.Label,
		Slot:      f.Payload.Slot,
		Snooze:    f.Payload.Snooze,
		Repeats:   f.Repeats,
		Backend:   f.Source,
		At:        f.At,
	}

	s.mu.Lock()
	enabled := s.cfg.Enabled
	window, maxEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	accepting, q := s.accepting, s.queue
	if enabled && accepting {
		s.sendWG.Add(1)
	}
	s.mu.Unlock()

	if window > 0 && !s.dedupAllow(dedupKey(ev), window, maxEntries) {
		metrics.Deliveries.WithLabelValues("deduped").Inc()
		s.log.Debug("duplicate firing suppressed", logx.String("alarm", ev.AlarmID), logx.String("request", ev.RequestID))
		if enabled && accepting {
			s.sendWG.Done()
		}
		return nil
	}

	if !enabled {
		s.publish(ev)
		metrics.Deliveries.WithLabelValues("direct").Inc()
		return nil
	}
	if !accepting || q == nil {
		return ErrStopped
	}
	defer s.sendWG.Done()

	select {
	case q <- ev:
		return nil
	default:
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// History returns delivered firings, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) workerLoop(ctx context.Context, q <-chan eventbus.AlarmFired) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, ev)
		}
	}
}

func (s *Service) deliver(ctx context.Context, ev eventbus.AlarmFired) {
	s.mu.Lock()
	cfg, lim, sinks := s.cfg, s.limiter, s.sinks
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}

	var failed error
	for _, sink := range sinks {
		if err := s.sendWithRetry(ctx, cfg, sink, ev); err != nil {
			failed = err
			s.log.Warn("sink delivery failed", logx.String("sink", sink.Name()), logx.String("alarm", ev.AlarmID), logx.Err(err))
		}
	}

	item := HistoryItem{At: time.Now(), AlarmID: ev.AlarmID, Label: ev.Label, Snooze: ev.Snooze, Backend: ev.Backend}
	if failed != nil {
		item.Err = failed.Error()
		metrics.Deliveries.WithLabelValues("failed").Inc()
	} else {
		metrics.Deliveries.WithLabelValues("delivered").Inc()
	}
	s.appendHistory(item, cfg.HistorySize)
	// Published even when a sink failed: re-arming must not depend on a sink.
	s.publish(ev)
}

func (s *Service) sendWithRetry(ctx context.Context, cfg Config, sink Sink, ev eventbus.AlarmFired) error {
	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sink.Deliver(callCtx, ev)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func (s *Service) publish(ev eventbus.AlarmFired) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmFired, Data: ev})
}

func (s *Service) appendHistory(it HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

// dedupKey identifies one firing of one request.
func dedupKey(ev eventbus.AlarmFired) string {
	return ev.RequestID + "@" + strconv.FormatInt(ev.At.UnixNano(), 10)
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		var oldest string
		var oldestAt time.Time
		for k, t := range s.dedup {
			if oldest == "" || t.Before(oldestAt) {
				oldest, oldestAt = k, t
			}
		}
		delete(s.dedup, oldest)
	}
	return true
}

// retryDelay is base*2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
