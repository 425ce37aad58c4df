// Package pipeline runs the extraction pipeline: the orchestrator fans
// (segment, pass) jobs out to bounded workers with retries and a shared
// circuit breaker, the aggregator merges per-segment results into a
// document-level extraction, and the controller sequences the whole run.
package pipeline

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
	"github.com/sells-group/lease-abstract/internal/resilience"
	"github.com/sells-group/lease-abstract/pkg/extractor"
)

// Orchestration is the outcome of running every pass over every included
// segment. Every dispatched job has exactly one terminal result; a failed
// segment never blocks the others.
type Orchestration struct {
	Results         []model.ExtractionResult
	SkippedPasses   []string
	BudgetExhausted bool
	Usage           model.TokenUsage
}

// Orchestrator executes passes strictly in order, each pass fully finishing
// before the next starts so dependent passes see aggregated prior findings.
type Orchestrator struct {
	caller  extractor.Caller
	passes  []model.ExtractionPass
	cfg     config.OrchestraConfig
	nowFunc func() time.Time
}

// NewOrchestrator builds an orchestrator over the given call adapter and pass
// sequence.
func NewOrchestrator(caller extractor.Caller, passes []model.ExtractionPass, cfg config.OrchestraConfig) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Orchestrator{caller: caller, passes: passes, cfg: cfg, nowFunc: time.Now}
}

// Run drives all passes over the non-excluded segments. It returns an error
// only when ctx is canceled; extraction failures are isolated into their
// per-job results.
func (o *Orchestrator) Run(ctx context.Context, segments []model.Segment) (*Orchestration, error) {
	included := make([]model.Segment, 0, len(segments))
	for _, s := range segments {
		if !s.Excluded {
			included = append(included, s)
		}
	}

	out := &Orchestration{}
	if len(included) == 0 {
		return out, nil
	}

	// Expensive passes are skipped for the whole run when the document is
	// large. Decided once here so the behavior cannot flip between passes.
	skipExpensive := o.cfg.LargeDocSegments > 0 && len(included) > o.cfg.LargeDocSegments
	if skipExpensive {
		zap.L().Info("orchestrator: large document, skipping expensive passes",
			zap.Int("segments", len(included)),
			zap.Int("threshold", o.cfg.LargeDocSegments),
		)
	}

	var deadline time.Time
	if o.cfg.BudgetSecs > 0 {
		deadline = o.nowFunc().Add(time.Duration(o.cfg.BudgetSecs) * time.Second)
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: o.cfg.CircuitFailureThreshold,
		ResetTimeout:     time.Duration(o.cfg.CircuitResetSecs) * time.Second,
		ShouldTrip:       resilience.IsTransient,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("orchestrator: extraction circuit state change",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	var budgetHit atomic.Bool
	fieldsByPass := make(map[string]map[string]any)

	for _, pass := range o.passes {
		if skipExpensive && pass.Expensive {
			out.SkippedPasses = append(out.SkippedPasses, pass.Name)
			for _, seg := range included {
				out.Results = append(out.Results, model.ExtractionResult{
					SegmentID: seg.ID,
					PassName:  pass.Name,
					Status:    model.StatusSkipped,
					Error:     "expensive pass skipped for large document",
				})
			}
			continue
		}

		prior := priorContextFor(pass, fieldsByPass)
		results := make([]model.ExtractionResult, len(included))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Concurrency)
		for i, seg := range included {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if !deadline.IsZero() && o.nowFunc().After(deadline) {
					budgetHit.Store(true)
					results[i] = model.ExtractionResult{
						SegmentID: seg.ID,
						PassName:  pass.Name,
						Status:    model.StatusSkipped,
						Error:     "run budget exhausted",
					}
					return nil
				}
				results[i] = o.runJob(gctx, breaker, seg, pass, prior)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		merged := make(map[string]any)
		for _, r := range results {
			out.Usage.Add(r.Usage)
			if r.Status == model.StatusOK {
				for name, ans := range r.Fields {
					merged[name] = ans.Value
				}
			}
		}
		fieldsByPass[pass.Name] = merged
		out.Results = append(out.Results, results...)
	}

	out.BudgetExhausted = budgetHit.Load()
	return out, nil
}

// runJob performs one (segment, pass) call with retries through the shared
// circuit breaker and always produces a terminal result.
func (o *Orchestrator) runJob(ctx context.Context, breaker *resilience.CircuitBreaker, seg model.Segment, pass model.ExtractionPass, prior string) model.ExtractionResult {
	retryCfg := resilience.FromConfig(
		o.cfg.MaxAttempts,
		o.cfg.InitialBackoffMS,
		o.cfg.MaxBackoffMS,
		o.cfg.JitterFraction,
	)
	retryCfg.ShouldRetry = extractor.IsRetryable
	retryCfg.OnRetry = resilience.RetryLogger(seg.ID, pass.Name)

	attempts := 0
	start := time.Now()
	res, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*model.ExtractionResult, error) {
		attempts++
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*model.ExtractionResult, error) {
			return o.caller.Call(ctx, seg, pass, prior)
		})
	})
	if err != nil {
		zap.L().Warn("orchestrator: extraction call permanently failed",
			zap.String("segment", seg.ID),
			zap.String("pass", pass.Name),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return model.ExtractionResult{
			SegmentID: seg.ID,
			PassName:  pass.Name,
			Status:    extractor.StatusOf(err),
			Error:     err.Error(),
			Attempts:  attempts,
			Usage:     extractor.UsageOf(err),
			ElapsedMS: time.Since(start).Milliseconds(),
		}
	}

	res.Attempts = attempts
	return *res
}

// priorContextFor serializes the merged findings of the pass's declared
// dependencies for prompt injection. Empty for independent passes.
func priorContextFor(pass model.ExtractionPass, fieldsByPass map[string]map[string]any) string {
	if len(pass.DependsOn) == 0 {
		return ""
	}
	ctxFields := make(map[string]map[string]any, len(pass.DependsOn))
	for _, dep := range pass.DependsOn {
		if fields := fieldsByPass[dep]; len(fields) > 0 {
			ctxFields[dep] = fields
		}
	}
	if len(ctxFields) == 0 {
		return ""
	}
	raw, err := json.Marshal(ctxFields)
	if err != nil {
		return ""
	}
	return string(raw)
}
