package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alarmd/internal/backend"
	"alarmd/internal/config"
	"alarmd/internal/delivery"
	"alarmd/internal/eventbus"
	"alarmd/internal/metrics"
	"alarmd/internal/orchestrator"
	"alarmd/internal/runtime/supervisor"
	"alarmd/internal/schedule"
	"alarmd/internal/storage"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  storage.Store
	device *time.Location

	native   *trigger.Native
	queue    *trigger.Queue
	deliv    *delivery.Service
	selector *backend.Selector
	orch     *orchestrator.Orchestrator
}

// New loads the config and wires every component. Nothing is started.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	device, err := deviceLocation(cfg)
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	deliv := delivery.New(dc, bus, root.With(logx.String("comp", "delivery")),
		delivery.LogSink{Log: root.With(logx.String("comp", "alarm"))},
	)

	tz := device.String()
	queue := trigger.NewQueue(trigger.QueueConfig{
		Capacity:  cfg.Scheduler.LegacyCapacity,
		Timezone:  tz,
		Authorize: trigger.Static(cfg.Scheduler.Legacy.Authorized),
	}, store, root.With(logx.String("comp", "trigger.queue")), deliv.Handle)
	native := trigger.NewNative(trigger.NativeConfig{
		Timezone:  tz,
		Authorize: trigger.Static(cfg.Scheduler.Native.Authorized),
	}, root.With(logx.String("comp", "trigger.native")), deliv.Handle)

	exp := schedule.Expander{Device: device}
	legacy := backend.NewLegacy(queue, exp, root.With(logx.String("comp", "backend")))
	nat := backend.NewNative(native, legacy, exp, root.With(logx.String("comp", "backend")))
	probe := backend.ProbeFor(backend.ParseMode(cfg.Scheduler.Backend), cfg.Scheduler.Native.Available)
	sel := backend.NewSelector(probe, nat, legacy, root.With(logx.String("comp", "backend")))

	oc, err := mapOrchestratorConfig(cfg, device)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	orch := orchestrator.New(oc, store, sel.Select(), bus, root)

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		device:   device,
		native:   native,
		queue:    queue,
		deliv:    deliv,
		selector: sel,
		orch:     orch,
	}, nil
}

func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }
func (a *App) Delivery() *delivery.Service              { return a.deliv }
func (a *App) Bus() eventbus.Bus                        { return a.bus }
func (a *App) Config() *config.Config                   { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger                      { return a.log }
func (a *App) Device() *time.Location                   { return a.device }
func (a *App) Queue() *trigger.Queue                    { return a.queue }

// Done is closed when the supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Prepare loads persisted queue state without starting timers. Short-lived
// commands call it instead of Start.
func (a *App) Prepare(ctx context.Context) error {
	return a.queue.Load(ctx)
}

// Close releases resources of an app that was prepared but never started.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// Reconcile re-derives every registration from storage.
func (a *App) Reconcile(ctx context.Context) error {
	n, err := a.orch.RescheduleAll(ctx)
	if err != nil {
		return err
	}
	a.log.Info("reconciled", logx.Int("enabled", n))
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.logs.Logger().With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateReload(cfg)
	})

	// The orchestrator subscribes to fired events before any primitive can
	// fire; restored overdue requests fire as soon as the queue starts.
	a.orch.Start(c)
	if a.deliv.Enabled() {
		a.deliv.Start(c)
	}
	if err := a.queue.Start(c); err != nil {
		return err
	}
	a.native.Start(c)

	if err := a.Reconcile(c); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	a.sup.Go("orchestrator", a.orch.Run)

	if cfg := a.cfgm.Get(); cfg.Metrics.Enabled {
		addr := cfg.Metrics.Addr
		a.sup.Go("metrics", func(c context.Context) error { return metrics.Serve(c, addr) })
		a.log.Info("metrics enabled", logx.String("addr", addr))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("backend", a.orch.Backend().Name()),
		logx.String("tz", a.device.String()),
	)
	return nil
}

// applyConfig pushes the live-reloadable sections of newCfg to components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if dc, err := mapDeliveryConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.deliv.Enabled()
		a.deliv.Apply(dc)
		switch {
		case wasEnabled && !dc.Enabled:
			a.log.Info("delivery disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.deliv.Stop(stopCtx)
			cancel()
		case !wasEnabled && dc.Enabled:
			a.log.Info("delivery enabled via config")
			a.deliv.Start(ctx)
		}
	}

	if oc, err := mapOrchestratorConfig(newCfg, a.device); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.orch.Apply(oc)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Primitives first so nothing fires into a stopped pipeline.
	step("trigger.native", 2*time.Second, func(c context.Context) error { a.native.Stop(c); return nil })
	step("trigger.queue", 1*time.Second, func(c context.Context) error { a.queue.Stop(c); return nil })
	step("delivery", 2*time.Second, func(c context.Context) error { a.deliv.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
