// Package health runs periodic liveness checks against connected providers.
// A check issues a tools/list request under a short timeout; providers that
// fail consecutive checks past a threshold are reported unhealthy and can be
// disconnected automatically.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crosswire-ai/crosswire/bus"
	"github.com/crosswire-ai/crosswire/core"
	"github.com/crosswire-ai/crosswire/provider"
)

const (
	defaultPollInterval     = 30 * time.Second
	defaultCheckTimeout     = 5 * time.Second
	defaultFailureThreshold = 3
)

// Target is the slice of the supervisor the scheduler drives. It is
// satisfied by *provider.Supervisor.
type Target interface {
	List() []provider.Info
	Send(ctx context.Context, providerID, method string, params any) (json.RawMessage, error)
	Disconnect(ctx context.Context, providerID string) error
}

// Event captures the result of one health check.
type Event struct {
	ProviderID string
	Healthy    bool
	Failures   int
	Latency    time.Duration
	Err        error
}

// EventHandler handles scheduler health events.
type EventHandler func(event Event)

// SchedulerConfig controls background health checking behavior.
type SchedulerConfig struct {
	Target Target

	// Bus receives provider.unhealthy events when the failure threshold
	// is crossed. Optional.
	Bus bus.EventBus

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// PollInterval is the check cadence for providers without a cron
	// schedule, and the scheduler's tick granularity.
	PollInterval time.Duration

	// CheckTimeout bounds each tools/list probe.
	CheckTimeout time.Duration

	// FailureThreshold is the number of consecutive failed checks before
	// a provider is reported unhealthy.
	FailureThreshold int

	// DisconnectUnhealthy disconnects a provider when it crosses the
	// failure threshold.
	DisconnectUnhealthy bool

	Now     func() time.Time
	OnEvent EventHandler
}

// Scheduler periodically checks connected providers.
type Scheduler struct {
	target              Target
	bus                 bus.EventBus
	logger              *slog.Logger
	pollInterval        time.Duration
	checkTimeout        time.Duration
	failureThreshold    int
	disconnectUnhealthy bool
	now                 func() time.Time
	onEvent             EventHandler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	tracked map[string]*trackedProvider
}

// trackedProvider holds per-provider check state between passes.
type trackedProvider struct {
	lastCheck    time.Time
	failures     int
	schedule     cron.Schedule
	scheduleExpr string
}

// NewScheduler creates a health scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Target == nil {
		return nil, errors.New("health: scheduler target is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}

	return &Scheduler{
		target:              cfg.Target,
		bus:                 cfg.Bus,
		logger:              cfg.Logger,
		pollInterval:        cfg.PollInterval,
		checkTimeout:        cfg.CheckTimeout,
		failureThreshold:    cfg.FailureThreshold,
		disconnectUnhealthy: cfg.DisconnectUnhealthy,
		now:                 cfg.Now,
		onEvent:             cfg.OnEvent,
		tracked:             make(map[string]*trackedProvider),
	}, nil
}

// Start begins scheduler execution. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("health: scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(loopCtx)
			}
		}
	}()

	return nil
}

// Stop terminates scheduler execution and waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one checking pass over all connected providers.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s == nil {
		return
	}

	now := s.now()
	infos := s.target.List()
	live := make(map[string]bool, len(infos))

	for _, info := range infos {
		live[info.Config.ID] = true
		if info.State != provider.StateConnected {
			s.forget(info.Config.ID)
			continue
		}

		tp := s.track(info.Config)
		if !s.isDue(tp, now) {
			continue
		}
		s.check(ctx, info.Config.ID, tp, now)
	}

	// Drop state for providers that were removed from the supervisor.
	s.mu.Lock()
	for id := range s.tracked {
		if !live[id] {
			delete(s.tracked, id)
		}
	}
	s.mu.Unlock()
}

// track returns the tracked state for a provider, creating it and parsing
// its cron schedule on first sight or when the expression changes.
func (s *Scheduler) track(cfg provider.Config) *trackedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp, ok := s.tracked[cfg.ID]
	if !ok {
		tp = &trackedProvider{}
		s.tracked[cfg.ID] = tp
	}

	if cfg.HealthSchedule != tp.scheduleExpr {
		tp.scheduleExpr = cfg.HealthSchedule
		tp.schedule = nil
		if cfg.HealthSchedule != "" {
			schedule, err := ParseSchedule(cfg.HealthSchedule)
			if err != nil {
				s.logger.Warn("invalid health schedule, falling back to poll interval",
					"provider_id", cfg.ID,
					"schedule", cfg.HealthSchedule,
					"error", err)
			} else {
				tp.schedule = schedule
			}
		}
	}
	return tp
}

func (s *Scheduler) forget(providerID string) {
	s.mu.Lock()
	delete(s.tracked, providerID)
	s.mu.Unlock()
}

// isDue reports whether a check should run this pass. The first check after
// a provider connects is always due.
func (s *Scheduler) isDue(tp *trackedProvider, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tp.lastCheck.IsZero() {
		return true
	}
	if tp.schedule != nil {
		return !now.Before(tp.schedule.Next(tp.lastCheck.UTC()))
	}
	return !now.Before(tp.lastCheck.Add(s.pollInterval))
}

func (s *Scheduler) check(ctx context.Context, providerID string, tp *trackedProvider, now time.Time) {
	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	start := time.Now()
	_, err := s.target.Send(checkCtx, providerID, "tools/list", nil)
	latency := time.Since(start)

	s.mu.Lock()
	tp.lastCheck = now
	if err == nil {
		tp.failures = 0
	} else {
		tp.failures++
	}
	failures := tp.failures
	s.mu.Unlock()

	event := Event{
		ProviderID: providerID,
		Healthy:    err == nil,
		Failures:   failures,
		Latency:    latency,
		Err:        err,
	}
	s.onEvent(event)
	core.EmitHealth(core.HealthObservation{
		ProviderID: providerID,
		Healthy:    err == nil,
		Failures:   failures,
		DurationMS: latency.Milliseconds(),
		ErrorCode:  errorCode(err),
	})

	if err == nil {
		return
	}

	s.logger.Debug("health check failed",
		"provider_id", providerID,
		"failures", failures,
		"error", err)

	if failures < s.failureThreshold {
		return
	}

	s.logger.Warn("provider unhealthy",
		"provider_id", providerID,
		"failures", failures)
	if s.bus != nil {
		detail := fmt.Sprintf("%d consecutive failed health checks: %v", failures, err)
		s.bus.Publish(bus.NewEvent(bus.EventProviderUnhealthy, providerID, detail))
	}

	s.mu.Lock()
	tp.failures = 0
	s.mu.Unlock()

	if s.disconnectUnhealthy {
		if derr := s.target.Disconnect(ctx, providerID); derr != nil {
			s.logger.Warn("disconnecting unhealthy provider failed",
				"provider_id", providerID,
				"error", derr)
		}
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return core.ErrorCode(err, core.ErrorCodeTransportFailure)
}

// Compile-time check that the supervisor satisfies Target.
var _ Target = (*provider.Supervisor)(nil)
