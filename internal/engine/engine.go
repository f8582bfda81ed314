package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/vulnverified/posture/internal/hostname"
	"github.com/vulnverified/posture/internal/signature"
)

// Config holds the runtime configuration for one collection run.
type Config struct {
	Target string
	Logger *zap.Logger
	Clock  clockwork.Clock
}

// Collectors holds the injectable collector implementations. A nil collector
// yields a failed stub for its block.
type Collectors struct {
	Governance Collector[GovernanceSignals, GovernanceFlags]
	Email      Collector[EmailSignals, EmailFlags]
	TLS        Collector[TLSSignals, TLSFlags]
	Technology Collector[TechnologySignals, TechnologyFlags]
	Exposure   Collector[ExposureSignals, ExposureFlags]
	Breach     Collector[BreachSignals, BreachFlags]
}

// ProgressReporter is called by the engine to report stage progress.
type ProgressReporter interface {
	Stage(num, total int, msg string)
	Detail(msg string)
	Warn(msg string)
}

const totalStages = 2

// Run normalizes the target, runs all six collectors concurrently and synthesizes
// the cross-block flags. It returns an error only when the target is empty after
// normalization; collector failures are recorded in their blocks.
func Run(ctx context.Context, cfg Config, collectors Collectors, progress ProgressReporter) (*Snapshot, error) {
	domain := hostname.Normalize(cfg.Target)
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	r := runner{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		progress: progress,
		domain:   domain,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.progress == nil {
		r.progress = nopProgress{}
	}

	snap := &Snapshot{
		Domain:           domain,
		SignatureVersion: signature.Version,
		StartedAt:        r.clock.Now().UTC(),
	}

	// Stage 1: collection. Each goroutine writes only its own field.
	r.progress.Stage(1, totalStages, fmt.Sprintf("Collecting signals for %s...", domain))
	var wg sync.WaitGroup
	wg.Add(len(Blocks))
	go func() {
		defer wg.Done()
		snap.Governance = collect(ctx, r, BlockGovernance, collectors.Governance)
	}()
	go func() {
		defer wg.Done()
		snap.Email = collect(ctx, r, BlockEmail, collectors.Email)
	}()
	go func() {
		defer wg.Done()
		snap.TLS = collect(ctx, r, BlockTLS, collectors.TLS)
	}()
	go func() {
		defer wg.Done()
		snap.Technology = collect(ctx, r, BlockTechnology, collectors.Technology)
	}()
	go func() {
		defer wg.Done()
		snap.Exposure = collect(ctx, r, BlockExposure, collectors.Exposure)
	}()
	go func() {
		defer wg.Done()
		snap.Breach = collect(ctx, r, BlockBreach, collectors.Breach)
	}()
	wg.Wait()

	// Stage 2: synthesis.
	r.progress.Stage(2, totalStages, "Synthesizing cross-block flags...")
	snap.Flags = Synthesize(snap)

	snap.CompletedAt = r.clock.Now().UTC()
	snap.DurationSecs = snap.CompletedAt.Sub(snap.StartedAt).Seconds()

	succeeded := 0
	for _, st := range snap.Statuses() {
		if st.Success {
			succeeded++
		}
	}
	r.progress.Detail(fmt.Sprintf("%d of %d blocks collected in %.1fs", succeeded, len(Blocks), snap.DurationSecs))
	r.log.Info("snapshot complete",
		zap.String("domain", domain),
		zap.Int("succeeded", succeeded),
		zap.Float64("duration_secs", snap.DurationSecs),
	)
	return snap, nil
}

type runner struct {
	log      *zap.Logger
	clock    clockwork.Clock
	progress ProgressReporter
	domain   string
}

// collect runs one collector and always returns a populated result. Errors and
// panics become failed stubs for this block only.
func collect[S, F any](ctx context.Context, r runner, block Block, c Collector[S, F]) (res CollectorResult[S, F]) {
	start := r.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Failed[S, F](block, fmt.Sprintf("collector fault: %v", p), r.clock.Now().UTC())
		}
		r.report(res.Status(), r.clock.Since(start))
	}()

	if c == nil {
		return Failed[S, F](block, "collector not configured", r.clock.Now().UTC())
	}
	obs, err := c.Collect(ctx, r.domain)
	if err != nil {
		return Failed[S, F](block, err.Error(), r.clock.Now().UTC())
	}
	return Succeeded(block, obs, r.clock.Now().UTC())
}

func (r runner) report(st Status, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("domain", r.domain),
		zap.String("block", string(st.Block)),
		zap.Bool("success", st.Success),
		zap.String("confidence", string(st.Confidence)),
		zap.Duration("duration", elapsed),
	}
	if !st.Success {
		r.log.Warn("collector failed", append(fields, zap.String("error", st.Error))...)
		r.progress.Warn(fmt.Sprintf("%s: %s", st.Block, st.Error))
		return
	}
	r.log.Info("collector finished", fields...)
	r.progress.Detail(fmt.Sprintf("%s collected (%s confidence)", st.Block, st.Confidence))
}

type nopProgress struct{}

func (nopProgress) Stage(int, int, string) {}
func (nopProgress) Detail(string)          {}
func (nopProgress) Warn(string)            {}
