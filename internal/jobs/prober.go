package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/blinks-backend/internal/upstream"
)

// Probe is one periodic liveness check. Its outcome is recorded on Tracker.
type Probe struct {
	Tracker *upstream.Tracker
	Check   func(ctx context.Context) error
	// SelfReporting marks checks whose client already records on Tracker
	SelfReporting bool
}

// Prober runs probes on a fixed interval so upstream health recovers, and
// degrades, without waiting for user traffic.
type Prober struct {
	probes   []Probe
	interval time.Duration
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	cancelCtx context.CancelFunc
}

type ProberConfig struct {
	Interval time.Duration
	// Timeout bounds a single check; defaults to half the interval
	Timeout time.Duration
}

func NewProber(logger *zap.SugaredLogger, config ProberConfig, probes ...Probe) *Prober {
	if config.Timeout <= 0 || config.Timeout > config.Interval {
		config.Timeout = config.Interval / 2
	}
	return &Prober{
		probes:   probes,
		interval: config.Interval,
		timeout:  config.Timeout,
		logger:   logger,
	}
}

// Start probes once immediately and then every interval until ctx ends.
func (p *Prober) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelCtx = cancel
	p.mu.Unlock()
	defer cancel()

	names := make([]string, 0, len(p.probes))
	for _, probe := range p.probes {
		names = append(names, probe.Tracker.Name())
	}
	p.logger.Infow("Starting upstream prober", "interval", p.interval, "probes", names)

	p.runAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("Upstream prober stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			p.runAll(ctx)
		}
	}
}

func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
}

func (p *Prober) runAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, probe := range p.probes {
		wg.Add(1)
		go func(probe Probe) {
			defer wg.Done()
			p.run(ctx, probe)
		}(probe)
	}
	wg.Wait()
}

func (p *Prober) run(ctx context.Context, probe Probe) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wasHealthy := probe.Tracker.Health().Healthy
	err := probe.Check(checkCtx)
	if ctx.Err() != nil {
		// shutting down; not a verdict on the upstream
		return
	}
	if !probe.SelfReporting {
		probe.Tracker.Record(err)
	}

	switch {
	case err != nil && wasHealthy:
		p.logger.Warnw("Upstream probe failed", "upstream", probe.Tracker.Name(), "error", err)
	case err == nil && !wasHealthy:
		p.logger.Infow("Upstream recovered", "upstream", probe.Tracker.Name())
	}
}
