package pipeline

import (
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
)

// Aggregator merges per-segment, per-pass extraction results into one
// document-level extraction. Later passes override earlier ones for the same
// field; within a pass, normalized-equal values merge their attributions and
// genuinely differing values are recorded as conflicts with a deterministic
// winner.
type Aggregator struct {
	registry    *model.FieldRegistry
	passes      []model.ExtractionPass
	segWeight   float64
	fieldWeight float64
}

// NewAggregator builds an aggregator over the given field registry and pass
// sequence, filling zero weights with an even split.
func NewAggregator(registry *model.FieldRegistry, passes []model.ExtractionPass, cfg config.AggregatorConfig) *Aggregator {
	if cfg.SegmentWeight <= 0 && cfg.FieldWeight <= 0 {
		cfg.SegmentWeight, cfg.FieldWeight = 0.5, 0.5
	}
	return &Aggregator{
		registry:    registry,
		passes:      passes,
		segWeight:   cfg.SegmentWeight,
		fieldWeight: cfg.FieldWeight,
	}
}

// candidateGroup collects every candidate that produced the same normalized
// value for a field within one pass.
type candidateGroup struct {
	value      any
	confidence float64
	excerpt    string
	segIndex   int
	sources    []model.Attribution
	candidates []model.Candidate
}

// Aggregate merges the orchestration output. The same input always yields the
// same output: conflict resolution is ordered by confidence, then excerpt
// length, then segment position.
func (a *Aggregator) Aggregate(docCat model.DocumentCategory, segments []model.Segment, orch *Orchestration) *model.AggregatedExtraction {
	segByID := make(map[string]model.Segment, len(segments))
	for _, s := range segments {
		segByID[s.ID] = s
	}

	byPass := make(map[string][]model.ExtractionResult)
	for _, r := range orch.Results {
		byPass[r.PassName] = append(byPass[r.PassName], r)
	}

	winners := make(map[string]model.ResolvedField)
	var conflicts []model.Conflict

	for _, pass := range a.passes {
		groups := make(map[string]map[string]*candidateGroup)
		var fieldOrder []string

		for _, r := range byPass[pass.Name] {
			if r.Status != model.StatusOK {
				continue
			}
			seg := segByID[r.SegmentID]
			for _, name := range sortedFieldNames(r.Fields) {
				ans := r.Fields[name]
				if groups[name] == nil {
					groups[name] = make(map[string]*candidateGroup)
					fieldOrder = append(fieldOrder, name)
				}
				addCandidate(groups[name], name, ans, seg, pass.Name)
			}
		}

		for _, name := range fieldOrder {
			ordered := orderedGroups(groups[name])
			win := pickWinner(ordered)

			if len(ordered) > 1 {
				conflict := model.Conflict{
					Field:    name,
					PassName: pass.Name,
					Resolved: model.Candidate{
						Value:      win.value,
						Confidence: win.confidence,
						Excerpt:    win.excerpt,
						SegmentID:  win.sources[0].SegmentID,
					},
				}
				for _, g := range ordered {
					conflict.Candidates = append(conflict.Candidates, g.candidates...)
				}
				conflicts = append(conflicts, conflict)

				zap.L().Warn("aggregator: conflicting values for field",
					zap.String("field", name),
					zap.String("pass", pass.Name),
					zap.Int("candidates", len(conflict.Candidates)),
				)
			}

			// Later passes override earlier ones for the same field.
			winners[name] = model.ResolvedField{
				Name:       name,
				Value:      win.value,
				Confidence: win.confidence,
				Excerpt:    win.excerpt,
				Sources:    win.sources,
			}
		}
	}

	out := &model.AggregatedExtraction{
		FieldsByCategory: make(map[model.Category]map[string]model.ResolvedField),
		Conflicts:        conflicts,
	}
	for name, rf := range winners {
		cat := a.registry.CategoryOf(docCat, name)
		if out.FieldsByCategory[cat] == nil {
			out.FieldsByCategory[cat] = make(map[string]model.ResolvedField)
		}
		out.FieldsByCategory[cat][name] = rf
	}

	expected := a.registry.ExpectedFor(docCat)
	resolvedExpected := 0
	for _, f := range expected {
		if _, ok := winners[f.Name]; ok {
			resolvedExpected++
		} else {
			out.MissingExpectedFields = append(out.MissingExpectedFields, f.Name)
		}
	}

	out.CompletenessScore = a.completeness(orch, resolvedExpected, len(expected))
	return out
}

// completeness blends the fraction of attempted segments that produced at
// least one good result with the fraction of expected fields resolved.
func (a *Aggregator) completeness(orch *Orchestration, resolvedExpected, expectedTotal int) float64 {
	attempted := make(map[string]bool)
	okSegs := make(map[string]bool)
	for _, r := range orch.Results {
		if r.Status == model.StatusSkipped {
			continue
		}
		attempted[r.SegmentID] = true
		if r.Status == model.StatusOK {
			okSegs[r.SegmentID] = true
		}
	}

	segRatio := 0.0
	if len(attempted) > 0 {
		segRatio = float64(len(okSegs)) / float64(len(attempted))
	}
	fieldRatio := 1.0
	if expectedTotal > 0 {
		fieldRatio = float64(resolvedExpected) / float64(expectedTotal)
	}

	total := a.segWeight + a.fieldWeight
	if total <= 0 {
		return 0
	}
	return (a.segWeight*segRatio + a.fieldWeight*fieldRatio) / total
}

func addCandidate(groups map[string]*candidateGroup, field string, ans model.FieldAnswer, seg model.Segment, passName string) {
	norm := normalizeValue(ans.Value)
	attribution := model.Attribution{
		SegmentID: seg.ID,
		PassName:  passName,
		Excerpt:   ans.Excerpt,
		PageStart: seg.PageStart,
		PageEnd:   seg.PageEnd,
	}
	candidate := model.Candidate{
		Value:      ans.Value,
		Confidence: ans.Confidence,
		Excerpt:    ans.Excerpt,
		SegmentID:  seg.ID,
	}

	g, ok := groups[norm]
	if !ok {
		groups[norm] = &candidateGroup{
			value:      ans.Value,
			confidence: ans.Confidence,
			excerpt:    ans.Excerpt,
			segIndex:   seg.Index,
			sources:    []model.Attribution{attribution},
			candidates: []model.Candidate{candidate},
		}
		return
	}

	g.sources = append(g.sources, attribution)
	g.candidates = append(g.candidates, candidate)
	if ans.Confidence > g.confidence {
		g.confidence = ans.Confidence
		g.excerpt = ans.Excerpt
		g.value = ans.Value
	}
	if seg.Index < g.segIndex {
		g.segIndex = seg.Index
	}
}

// orderedGroups returns the groups sorted by earliest segment for
// deterministic iteration regardless of map order.
func orderedGroups(groups map[string]*candidateGroup) []*candidateGroup {
	out := make([]*candidateGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].segIndex < out[j].segIndex })
	return out
}

// pickWinner resolves a conflict: highest confidence, then longest excerpt,
// then earliest segment.
func pickWinner(groups []*candidateGroup) *candidateGroup {
	best := groups[0]
	for _, g := range groups[1:] {
		switch {
		case g.confidence != best.confidence:
			if g.confidence > best.confidence {
				best = g
			}
		case len(g.excerpt) != len(best.excerpt):
			if len(g.excerpt) > len(best.excerpt) {
				best = g
			}
		case g.segIndex < best.segIndex:
			best = g
		}
	}
	return best
}

// normalizeValue produces the comparison key for value equality: non-strings
// are JSON-encoded, case is folded, and whitespace runs collapse to one space.
func normalizeValue(v any) string {
	s, ok := v.(string)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s = string(raw)
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func sortedFieldNames(fields map[string]model.FieldAnswer) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
