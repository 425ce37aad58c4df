package model

import "time"

// Attribution points a resolved value back to the segment, pass, and page it
// came from.
type Attribution struct {
	SegmentID string `json:"segment_id"`
	PassName  string `json:"pass_name"`
	Excerpt   string `json:"excerpt,omitempty"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
}

// ResolvedField is the best value for one field after merging, with every
// source that contributed the same value.
type ResolvedField struct {
	Name       string        `json:"name"`
	Value      any           `json:"value"`
	Confidence float64       `json:"confidence"`
	Excerpt    string        `json:"excerpt,omitempty"`
	Sources    []Attribution `json:"sources"`
}

// Candidate is one competing value for a conflicted field.
type Candidate struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Excerpt    string  `json:"excerpt,omitempty"`
	SegmentID  string  `json:"segment_id"`
}

// Conflict records a field for which multiple segments in the same pass
// produced differing values. All candidates are retained; Resolved holds the
// deterministic tie-break winner.
type Conflict struct {
	Field      string      `json:"field"`
	PassName   string      `json:"pass_name"`
	Candidates []Candidate `json:"candidates"`
	Resolved   Candidate   `json:"resolved"`
}

// AggregatedExtraction is the document-level merge of all per-segment,
// per-pass results. Immutable once handed to the controller.
type AggregatedExtraction struct {
	FieldsByCategory      map[Category]map[string]ResolvedField `json:"fields_by_category"`
	Conflicts             []Conflict                            `json:"conflicts,omitempty"`
	MissingExpectedFields []string                              `json:"missing_expected_fields,omitempty"`
	CompletenessScore     float64                               `json:"completeness_score"`
}

// FieldCount returns the total number of resolved fields across categories.
func (a *AggregatedExtraction) FieldCount() int {
	n := 0
	for _, fields := range a.FieldsByCategory {
		n += len(fields)
	}
	return n
}

// RunStatus tracks a pipeline run through its phases.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusSegmenting  RunStatus = "segmenting"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusExtracting  RunStatus = "extracting"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusDegraded    RunStatus = "degraded"
)

// Run is the persisted record of one pipeline invocation.
type Run struct {
	ID        string           `json:"id"`
	Category  DocumentCategory `json:"category"`
	DocLength int              `json:"doc_length"`
	Status    RunStatus        `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SegmentOutcome summarizes one segment's extraction for diagnostics: the
// terminal status per pass.
type SegmentOutcome struct {
	SegmentID string                `json:"segment_id"`
	Category  Category              `json:"category"`
	Excluded  bool                  `json:"excluded,omitempty"`
	PassState map[string]CallStatus `json:"pass_state,omitempty"`
}

// Failed reports whether every attempted pass for the segment ended in a
// terminal failure.
func (o SegmentOutcome) Failed() bool {
	if len(o.PassState) == 0 {
		return false
	}
	for _, st := range o.PassState {
		if !st.Failed() {
			return false
		}
	}
	return true
}

// RunDiagnostics is the full diagnostic trail surfaced alongside the
// aggregated extraction so callers can distinguish fully extracted runs from
// degraded-but-bounded ones.
type RunDiagnostics struct {
	RunID                string           `json:"run_id"`
	Category             DocumentCategory `json:"category"`
	Strategy             string           `json:"strategy"`
	EmptyDocument        bool             `json:"empty_document,omitempty"`
	SegmentationDegraded bool             `json:"segmentation_degraded,omitempty"`
	SegmentCount         int              `json:"segment_count"`
	ExcludedSegments     int              `json:"excluded_segments"`
	Segments             []SegmentOutcome `json:"segments,omitempty"`
	SkippedPasses        []string         `json:"skipped_passes,omitempty"`
	TruncatedSegments    []string         `json:"truncated_segments,omitempty"`
	BudgetExhausted      bool             `json:"budget_exhausted,omitempty"`
	CompletenessScore    float64          `json:"completeness_score"`
	Usage                TokenUsage       `json:"usage"`
	ElapsedMS            int64            `json:"elapsed_ms"`
}

// Degraded reports whether the run produced anything less than a complete
// extraction: a failed segment, a skipped pass, or an exhausted budget.
func (d *RunDiagnostics) Degraded() bool {
	if d.EmptyDocument || d.BudgetExhausted || len(d.SkippedPasses) > 0 {
		return true
	}
	for _, s := range d.Segments {
		for _, st := range s.PassState {
			if st.Failed() {
				return true
			}
		}
	}
	return false
}
