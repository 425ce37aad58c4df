package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lease-abstract/internal/classifier"
	"github.com/sells-group/lease-abstract/internal/model"
	"github.com/sells-group/lease-abstract/internal/segmenter"
	"github.com/sells-group/lease-abstract/internal/store"
)

// Output is everything a pipeline run produces: the merged extraction and
// the diagnostic trail that tells a complete run apart from a degraded one.
type Output struct {
	RunID       string                      `json:"run_id"`
	Extraction  *model.AggregatedExtraction `json:"extraction"`
	Diagnostics *model.RunDiagnostics       `json:"diagnostics"`
}

// Controller sequences one document through segmentation, classification,
// extraction, and aggregation, journaling status transitions along the way.
type Controller struct {
	segmenter  *segmenter.Segmenter
	classifier *classifier.Classifier
	orch       *Orchestrator
	agg        *Aggregator
	journal    store.Store

	minDocumentChars int
}

// NewController wires the pipeline stages together. minDocumentChars bounds
// the short-circuit for documents too thin to extract from.
func NewController(seg *segmenter.Segmenter, cls *classifier.Classifier, orch *Orchestrator, agg *Aggregator, journal store.Store, minDocumentChars int) *Controller {
	if journal == nil {
		journal = store.NopStore{}
	}
	if minDocumentChars <= 0 {
		minDocumentChars = 500
	}
	return &Controller{
		segmenter:        seg,
		classifier:       cls,
		orch:             orch,
		agg:              agg,
		journal:          journal,
		minDocumentChars: minDocumentChars,
	}
}

// Run processes one document. It returns an error only when the context is
// canceled; every other failure mode degrades the output instead of losing it.
func (c *Controller) Run(ctx context.Context, text string, docCat model.DocumentCategory) (*Output, error) {
	start := time.Now()
	run := &model.Run{
		ID:        uuid.NewString(),
		Category:  docCat,
		DocLength: len(text),
		Status:    model.RunStatusQueued,
	}
	c.record(ctx, run.ID, func() error { return c.journal.CreateRun(ctx, run) })

	zap.L().Info("pipeline: run started",
		zap.String("run", run.ID),
		zap.String("category", string(docCat)),
		zap.Int("doc_len", len(text)),
	)

	if len(strings.TrimSpace(text)) < c.minDocumentChars {
		zap.L().Warn("pipeline: document below minimum length",
			zap.String("run", run.ID),
			zap.Int("doc_len", len(text)),
			zap.Int("min", c.minDocumentChars),
		)
		out := &Output{
			RunID: run.ID,
			Extraction: &model.AggregatedExtraction{
				FieldsByCategory: map[model.Category]map[string]model.ResolvedField{},
			},
			Diagnostics: &model.RunDiagnostics{
				RunID:         run.ID,
				Category:      docCat,
				EmptyDocument: true,
				ElapsedMS:     time.Since(start).Milliseconds(),
			},
		}
		c.record(ctx, run.ID, func() error {
			return c.journal.CompleteRun(ctx, run.ID, model.RunStatusDegraded, 0, model.TokenUsage{})
		})
		return out, nil
	}

	c.setStatus(ctx, run.ID, model.RunStatusSegmenting)
	segRes := c.segmenter.Segment(text)

	c.setStatus(ctx, run.ID, model.RunStatusClassifying)
	segments := c.classifier.Classify(segRes.Segments)

	c.setStatus(ctx, run.ID, model.RunStatusExtracting)
	orchRes, err := c.orch.Run(ctx, segments)
	if err != nil {
		c.record(ctx, run.ID, func() error {
			return c.journal.CompleteRun(context.WithoutCancel(ctx), run.ID, model.RunStatusDegraded, 0, model.TokenUsage{})
		})
		return nil, err
	}

	c.setStatus(ctx, run.ID, model.RunStatusAggregating)
	extraction := c.agg.Aggregate(docCat, segments, orchRes)

	diags := buildDiagnostics(run.ID, docCat, segRes, segments, orchRes, extraction)
	diags.ElapsedMS = time.Since(start).Milliseconds()

	status := model.RunStatusComplete
	if diags.Degraded() {
		status = model.RunStatusDegraded
	}
	c.record(ctx, run.ID, func() error {
		return c.journal.CompleteRun(ctx, run.ID, status, extraction.CompletenessScore, orchRes.Usage)
	})

	zap.L().Info("pipeline: run finished",
		zap.String("run", run.ID),
		zap.String("status", string(status)),
		zap.Int("segments", diags.SegmentCount),
		zap.Int("fields", extraction.FieldCount()),
		zap.Float64("completeness", extraction.CompletenessScore),
		zap.Int64("elapsed_ms", diags.ElapsedMS),
	)

	return &Output{RunID: run.ID, Extraction: extraction, Diagnostics: diags}, nil
}

func buildDiagnostics(runID string, docCat model.DocumentCategory, segRes segmenter.Result, segments []model.Segment, orch *Orchestration, extraction *model.AggregatedExtraction) *model.RunDiagnostics {
	outcomes := make(map[string]*model.SegmentOutcome, len(segments))
	order := make([]string, 0, len(segments))
	excluded := 0
	for _, s := range segments {
		if s.Excluded {
			excluded++
		}
		outcomes[s.ID] = &model.SegmentOutcome{
			SegmentID: s.ID,
			Category:  s.Category,
			Excluded:  s.Excluded,
			PassState: make(map[string]model.CallStatus),
		}
		order = append(order, s.ID)
	}

	truncated := make(map[string]bool)
	for _, r := range orch.Results {
		if o, ok := outcomes[r.SegmentID]; ok {
			o.PassState[r.PassName] = r.Status
		}
		if r.Truncated {
			truncated[r.SegmentID] = true
		}
	}

	diags := &model.RunDiagnostics{
		RunID:                runID,
		Category:             docCat,
		Strategy:             segRes.Strategy,
		SegmentationDegraded: segRes.Degraded,
		SegmentCount:         len(segments),
		ExcludedSegments:     excluded,
		SkippedPasses:        orch.SkippedPasses,
		BudgetExhausted:      orch.BudgetExhausted,
		CompletenessScore:    extraction.CompletenessScore,
		Usage:                orch.Usage,
	}
	for _, id := range order {
		diags.Segments = append(diags.Segments, *outcomes[id])
		if truncated[id] {
			diags.TruncatedSegments = append(diags.TruncatedSegments, id)
		}
	}
	return diags
}

// setStatus journals a phase transition, logging rather than failing on
// journal errors: persistence problems must not abort an extraction run.
func (c *Controller) setStatus(ctx context.Context, id string, status model.RunStatus) {
	c.record(ctx, id, func() error { return c.journal.UpdateStatus(ctx, id, status) })
}

func (c *Controller) record(ctx context.Context, id string, fn func() error) {
	if err := fn(); err != nil && ctx.Err() == nil {
		zap.L().Warn("pipeline: run journal write failed",
			zap.String("run", id),
			zap.Error(err),
		)
	}
}
