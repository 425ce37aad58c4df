package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-abstract/internal/classifier"
	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
	"github.com/sells-group/lease-abstract/internal/segmenter"
	"github.com/sells-group/lease-abstract/internal/store"
	"github.com/sells-group/lease-abstract/pkg/extractor"
)

func timeoutError() error {
	return &extractor.CallError{Status: model.StatusTimeout, Err: context.DeadlineExceeded}
}

// recordingStore captures the journal writes a run makes.
type recordingStore struct {
	store.NopStore
	mu       sync.Mutex
	statuses []model.RunStatus
	final    model.RunStatus
}

func (r *recordingStore) CreateRun(_ context.Context, run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, run.Status)
	return nil
}

func (r *recordingStore) UpdateStatus(_ context.Context, _ string, status model.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *recordingStore) CompleteRun(_ context.Context, _ string, status model.RunStatus, _ float64, _ model.TokenUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.final = status
	return nil
}

func newTestController(caller *fakeCaller, journal store.Store) *Controller {
	seg := segmenter.New(config.SegmenterConfig{
		TargetSize:      2000,
		MaxSize:         4000,
		OverlapSize:     100,
		LayoutThreshold: 80000,
	})
	cls := classifier.New(config.ClassifierConfig{
		ExclusionMaxChars: 1500,
		SignatureKeywords: []string{"signature", "notary", "in witness whereof", "executed"},
	})
	orch := NewOrchestrator(caller, twoPasses(), fastOrchestraConfig())
	agg := NewAggregator(model.DefaultFieldRegistry(), twoPasses(), config.AggregatorConfig{SegmentWeight: 0.5, FieldWeight: 0.5})
	return NewController(seg, cls, orch, agg, journal, 500)
}

// leaseText builds a classifiable document comfortably above the minimum.
func leaseText() string {
	var b strings.Builder
	b.WriteString("ARTICLE 1 PARTIES\nThis lease is entered into between Acme Holdings LLC, as Landlord, and Beta Retail Inc., as Tenant.\n\n")
	b.WriteString("ARTICLE 2 RENT\nTenant shall pay base rent of $4,500 per month, plus additional rent for operating expenses and taxes.\n\n")
	for range 6 {
		b.WriteString("ARTICLE 3 MAINTENANCE\nTenant shall keep the premises in good repair, including all alterations and improvements made during the lease.\n\n")
	}
	b.WriteString("IN WITNESS WHEREOF, the parties have executed this lease.\nLANDLORD: ____________ TENANT: ____________ Notary signature.\n")
	return b.String()
}

func TestController_ShortDocumentShortCircuits(t *testing.T) {
	journal := &recordingStore{}
	c := newTestController(&fakeCaller{respond: alwaysOK}, journal)

	out, err := c.Run(context.Background(), "too short to extract from", model.CategoryRetailLease)
	require.NoError(t, err)

	assert.True(t, out.Diagnostics.EmptyDocument)
	assert.True(t, out.Diagnostics.Degraded())
	assert.Zero(t, out.Extraction.FieldCount())
	assert.Equal(t, model.RunStatusDegraded, journal.final)
}

func TestController_EndToEnd(t *testing.T) {
	journal := &recordingStore{}
	c := newTestController(&fakeCaller{respond: alwaysOK}, journal)

	out, err := c.Run(context.Background(), leaseText(), model.CategoryRetailLease)
	require.NoError(t, err)

	assert.NotEmpty(t, out.RunID)
	assert.Greater(t, out.Extraction.FieldCount(), 0)
	assert.False(t, out.Diagnostics.Degraded())
	assert.Greater(t, out.Diagnostics.SegmentCount, 0)
	assert.Positive(t, out.Diagnostics.CompletenessScore)
	assert.Positive(t, out.Diagnostics.Usage.InputTokens)

	assert.Equal(t, []model.RunStatus{
		model.RunStatusQueued,
		model.RunStatusSegmenting,
		model.RunStatusClassifying,
		model.RunStatusExtracting,
		model.RunStatusAggregating,
		model.RunStatusComplete,
	}, journal.statuses)
}

func TestController_SignatureSegmentExcludedFromExtraction(t *testing.T) {
	var body strings.Builder
	body.WriteString("ARTICLE 1 RENT\nTenant shall pay base rent of $4,500 per month plus additional rent.\n\n")
	for range 8 {
		body.WriteString("ARTICLE 2 MAINTENANCE\nTenant shall keep the premises in good repair, including alterations and improvements.\n\n")
	}
	sig := "SIGNATURES\nIN WITNESS WHEREOF, the parties have executed this lease under seal.\nLANDLORD: ____________\nTENANT: ____________\nAcknowledged before me, Notary Public. Witness my signature.\n"
	text := body.String() + sig

	// Size the segmenter so the cut lands on the signature heading.
	seg := segmenter.New(config.SegmenterConfig{
		TargetSize:      body.Len(),
		MaxSize:         2 * body.Len(),
		LayoutThreshold: 80000,
	})
	cls := classifier.New(config.ClassifierConfig{
		ExclusionMaxChars: 1500,
		SignatureKeywords: []string{"signature", "notary", "witness", "in witness whereof", "executed", "seal"},
	})
	caller := &fakeCaller{respond: alwaysOK}
	orch := NewOrchestrator(caller, twoPasses(), fastOrchestraConfig())
	agg := NewAggregator(model.DefaultFieldRegistry(), twoPasses(), config.AggregatorConfig{SegmentWeight: 0.5, FieldWeight: 0.5})
	c := NewController(seg, cls, orch, agg, &recordingStore{}, 500)

	out, err := c.Run(context.Background(), text, model.CategoryGenericLease)
	require.NoError(t, err)

	var excludedSeen bool
	for _, seg := range out.Diagnostics.Segments {
		if seg.Excluded {
			excludedSeen = true
			assert.Empty(t, seg.PassState, "excluded segment %s must not be dispatched", seg.SegmentID)
		}
	}
	assert.True(t, excludedSeen, "the signature block should be excluded")
	assert.Equal(t, out.Diagnostics.ExcludedSegments, countExcluded(out.Diagnostics.Segments))
}

func countExcluded(segs []model.SegmentOutcome) int {
	n := 0
	for _, s := range segs {
		if s.Excluded {
			n++
		}
	}
	return n
}

func TestController_DegradedRunKeepsPartialResults(t *testing.T) {
	journal := &recordingStore{}
	caller := &fakeCaller{respond: func(seg model.Segment, pass model.ExtractionPass, prior string, attempt int) (*model.ExtractionResult, error) {
		if pass.Name == "clauses" {
			return nil, timeoutError()
		}
		return alwaysOK(seg, pass, prior, attempt)
	}}
	c := newTestController(caller, journal)

	out, err := c.Run(context.Background(), leaseText(), model.CategoryGenericLease)
	require.NoError(t, err)

	assert.True(t, out.Diagnostics.Degraded())
	assert.Equal(t, model.RunStatusDegraded, journal.final)
	// The structure pass still produced fields.
	assert.Greater(t, out.Extraction.FieldCount(), 0)
	assert.Less(t, out.Diagnostics.CompletenessScore, 1.0)
}

func TestController_CanceledContextPropagates(t *testing.T) {
	c := newTestController(&fakeCaller{respond: alwaysOK}, &recordingStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, leaseText(), model.CategoryGenericLease)
	assert.Error(t, err)
}
