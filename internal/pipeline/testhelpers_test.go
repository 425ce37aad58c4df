package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
)

// fakeCaller is a scriptable extraction adapter that records per-job attempt
// counts and the peak number of concurrent calls.
type fakeCaller struct {
	mu       sync.Mutex
	attempts map[string]int

	inFlight  atomic.Int32
	peakCalls atomic.Int32
	delay     time.Duration

	respond func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error)
}

func (f *fakeCaller) Call(ctx context.Context, seg model.Segment, pass model.ExtractionPass, prior string) (*model.ExtractionResult, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peakCalls.Load()
		if cur <= peak || f.peakCalls.CompareAndSwap(peak, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	key := seg.ID + "/" + pass.Name
	f.attempts[key]++
	attempt := f.attempts[key]
	f.mu.Unlock()

	return f.respond(seg, pass, prior, attempt)
}

func (f *fakeCaller) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.attempts {
		n += c
	}
	return n
}

func okResult(seg model.Segment, pass model.ExtractionPass, fields map[string]model.FieldAnswer) *model.ExtractionResult {
	return &model.ExtractionResult{
		SegmentID: seg.ID,
		PassName:  pass.Name,
		Status:    model.StatusOK,
		Fields:    fields,
		Usage:     model.TokenUsage{InputTokens: 50, OutputTokens: 10},
	}
}

func answer(value any, excerpt string, confidence float64) model.FieldAnswer {
	return model.FieldAnswer{Value: value, Excerpt: excerpt, Confidence: confidence}
}

func twoPasses() []model.ExtractionPass {
	return []model.ExtractionPass{
		{Name: "structure", TimeoutSecs: 5, MaxTokens: 1024},
		{Name: "clauses", DependsOn: []string{"structure"}, TimeoutSecs: 5, MaxTokens: 1024},
	}
}

func fourPasses() []model.ExtractionPass {
	return append(twoPasses(),
		model.ExtractionPass{Name: "derived", DependsOn: []string{"clauses"}, Expensive: true, TimeoutSecs: 5},
		model.ExtractionPass{Name: "calculations", DependsOn: []string{"clauses"}, Expensive: true, TimeoutSecs: 5},
	)
}

func fastOrchestraConfig() config.OrchestraConfig {
	return config.OrchestraConfig{
		Concurrency:             4,
		MaxAttempts:             3,
		InitialBackoffMS:        1,
		MaxBackoffMS:            2,
		JitterFraction:          0,
		CircuitFailureThreshold: 100,
		CircuitResetSecs:        1,
	}
}

func makeSegments(n int) []model.Segment {
	segs := make([]model.Segment, n)
	offset := 0
	for i := range segs {
		segs[i] = model.Segment{
			ID:          segID(i),
			Index:       i,
			Text:        "Tenant shall pay base rent monthly.",
			StartOffset: offset,
			EndOffset:   offset + 100,
			Category:    model.CategoryFinancial,
		}
		offset += 100
	}
	return segs
}

func segID(i int) string {
	return string(rune('a'+i)) + "-seg"
}
