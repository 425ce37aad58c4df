package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-abstract/internal/model"
	"github.com/sells-group/lease-abstract/internal/resilience"
	"github.com/sells-group/lease-abstract/pkg/extractor"
)

func alwaysOK(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
	return okResult(seg, pass, map[string]model.FieldAnswer{
		"base_rent": answer("$4,500", "base rent of $4,500", 0.9),
	}), nil
}

func TestOrchestrator_RunsEveryPassOverEverySegment(t *testing.T) {
	caller := &fakeCaller{respond: alwaysOK}
	o := NewOrchestrator(caller, fourPasses(), fastOrchestraConfig())

	segs := makeSegments(3)
	out, err := o.Run(context.Background(), segs)

	require.NoError(t, err)
	assert.Len(t, out.Results, 12)
	for _, r := range out.Results {
		assert.Equal(t, model.StatusOK, r.Status)
		assert.Equal(t, 1, r.Attempts)
	}
	assert.Empty(t, out.SkippedPasses)
	assert.False(t, out.BudgetExhausted)
	assert.Equal(t, 12*50, out.Usage.InputTokens)
}

func TestOrchestrator_ExcludedSegmentsNotDispatched(t *testing.T) {
	caller := &fakeCaller{respond: alwaysOK}
	o := NewOrchestrator(caller, twoPasses(), fastOrchestraConfig())

	segs := makeSegments(3)
	segs[1].Excluded = true
	out, err := o.Run(context.Background(), segs)

	require.NoError(t, err)
	assert.Len(t, out.Results, 4)
	for _, r := range out.Results {
		assert.NotEqual(t, segs[1].ID, r.SegmentID)
	}
}

func TestOrchestrator_ConcurrencyBounded(t *testing.T) {
	caller := &fakeCaller{respond: alwaysOK, delay: 5 * time.Millisecond}
	cfg := fastOrchestraConfig()
	cfg.Concurrency = 3
	o := NewOrchestrator(caller, twoPasses()[:1], cfg)

	_, err := o.Run(context.Background(), makeSegments(12))
	require.NoError(t, err)
	assert.LessOrEqual(t, caller.peakCalls.Load(), int32(3))
}

func TestOrchestrator_FailureIsolation(t *testing.T) {
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		if seg.ID == segID(1) {
			return nil, &extractor.CallError{Status: model.StatusServiceError, Err: eris.New("invalid request")}
		}
		return alwaysOK(seg, pass, prior, attempt)
	}}
	o := NewOrchestrator(caller, twoPasses()[:1], fastOrchestraConfig())

	out, err := o.Run(context.Background(), makeSegments(3))
	require.NoError(t, err)
	require.Len(t, out.Results, 3)

	byID := make(map[string]model.ExtractionResult)
	for _, r := range out.Results {
		byID[r.SegmentID] = r
	}
	assert.Equal(t, model.StatusOK, byID[segID(0)].Status)
	assert.Equal(t, model.StatusServiceError, byID[segID(1)].Status)
	assert.NotEmpty(t, byID[segID(1)].Error)
	assert.Equal(t, model.StatusOK, byID[segID(2)].Status)
}

func TestOrchestrator_RetriesTransientFailure(t *testing.T) {
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		if attempt < 3 {
			return nil, &extractor.CallError{
				Status: model.StatusServiceError,
				Err:    resilience.NewTransientError(eris.New("overloaded"), 529),
			}
		}
		return alwaysOK(seg, pass, prior, attempt)
	}}
	o := NewOrchestrator(caller, twoPasses()[:1], fastOrchestraConfig())

	out, err := o.Run(context.Background(), makeSegments(1))
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, model.StatusOK, out.Results[0].Status)
	assert.Equal(t, 3, out.Results[0].Attempts)
}

func TestOrchestrator_MalformedRetriedThenTerminal(t *testing.T) {
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		return nil, &extractor.CallError{Status: model.StatusMalformed, Err: eris.New("no JSON object in response")}
	}}
	cfg := fastOrchestraConfig()
	cfg.MaxAttempts = 2
	o := NewOrchestrator(caller, twoPasses()[:1], cfg)

	out, err := o.Run(context.Background(), makeSegments(1))
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, model.StatusMalformed, out.Results[0].Status)
	assert.Equal(t, 2, out.Results[0].Attempts)
}

func TestOrchestrator_NonRetryableFailsImmediately(t *testing.T) {
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		return nil, &extractor.CallError{Status: model.StatusServiceError, Err: eris.New("invalid api key")}
	}}
	o := NewOrchestrator(caller, twoPasses()[:1], fastOrchestraConfig())

	out, err := o.Run(context.Background(), makeSegments(1))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Results[0].Attempts)
	assert.Equal(t, 1, caller.totalCalls())
}

func TestOrchestrator_ExpensivePassesSkippedForLargeDocs(t *testing.T) {
	caller := &fakeCaller{respond: alwaysOK}
	cfg := fastOrchestraConfig()
	cfg.LargeDocSegments = 2
	o := NewOrchestrator(caller, fourPasses(), cfg)

	out, err := o.Run(context.Background(), makeSegments(3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"derived", "calculations"}, out.SkippedPasses)

	skipped := 0
	for _, r := range out.Results {
		if r.Status == model.StatusSkipped {
			skipped++
			assert.Contains(t, []string{"derived", "calculations"}, r.PassName)
		}
	}
	assert.Equal(t, 6, skipped)
	// The cheap passes still ran for every segment.
	assert.Equal(t, 6, caller.totalCalls())
}

func TestOrchestrator_BudgetStopsNewDispatch(t *testing.T) {
	var elapsed atomic.Int64
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		// Each completed call burns more than the whole budget.
		elapsed.Add(int64(20 * time.Second))
		return alwaysOK(seg, pass, prior, attempt)
	}}

	cfg := fastOrchestraConfig()
	cfg.BudgetSecs = 10
	cfg.Concurrency = 1
	o := NewOrchestrator(caller, twoPasses(), cfg)
	base := time.Now()
	o.nowFunc = func() time.Time { return base.Add(time.Duration(elapsed.Load())) }

	out, err := o.Run(context.Background(), makeSegments(1))
	require.NoError(t, err)
	assert.True(t, out.BudgetExhausted)

	byPass := make(map[string]model.ExtractionResult)
	for _, r := range out.Results {
		byPass[r.PassName] = r
	}
	assert.Equal(t, model.StatusOK, byPass["structure"].Status)
	assert.Equal(t, model.StatusSkipped, byPass["clauses"].Status)
	assert.Equal(t, "run budget exhausted", byPass["clauses"].Error)
}

func TestOrchestrator_PriorContextFromDependencies(t *testing.T) {
	var clausesPrior string
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		switch pass.Name {
		case "structure":
			assert.Empty(t, prior)
			return okResult(seg, pass, map[string]model.FieldAnswer{
				"tenant": answer("Acme LLC", "Acme LLC, as Tenant", 0.95),
			}), nil
		default:
			clausesPrior = prior
			return okResult(seg, pass, nil), nil
		}
	}}
	o := NewOrchestrator(caller, twoPasses(), fastOrchestraConfig())

	_, err := o.Run(context.Background(), makeSegments(1))
	require.NoError(t, err)
	assert.Contains(t, clausesPrior, "Acme LLC")
	assert.Contains(t, clausesPrior, "structure")
}

func TestOrchestrator_CircuitBreakerStopsHammering(t *testing.T) {
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		return nil, &extractor.CallError{
			Status: model.StatusServiceError,
			Err:    resilience.NewTransientError(eris.New("service down"), 503),
		}
	}}

	cfg := fastOrchestraConfig()
	cfg.MaxAttempts = 1
	cfg.Concurrency = 1
	cfg.CircuitFailureThreshold = 2
	cfg.CircuitResetSecs = 300
	o := NewOrchestrator(caller, twoPasses()[:1], cfg)

	out, err := o.Run(context.Background(), makeSegments(5))
	require.NoError(t, err)
	require.Len(t, out.Results, 5)

	// Two real failures trip the circuit; the rest are rejected unsent.
	assert.Equal(t, 2, caller.totalCalls())
	for _, r := range out.Results {
		assert.Equal(t, model.StatusServiceError, r.Status)
	}
}

func TestOrchestrator_CanceledContext(t *testing.T) {
	caller := &fakeCaller{respond: alwaysOK}
	o := NewOrchestrator(caller, twoPasses(), fastOrchestraConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, makeSegments(2))
	assert.Error(t, err)
}
