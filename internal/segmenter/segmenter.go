// Package segmenter splits lease document text into bounded,
// position-tracked segments. Two strategies: layout-aware cutting at
// structural boundaries for normal documents, and a fast paragraph fallback
// for very large ones. Segmentation never fails; when layout detection
// produces inconsistent coverage it degrades to the fallback and reports it.
package segmenter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
)

const (
	StrategyLayout   = "layout"
	StrategyFallback = "fallback"
)

// Result is the outcome of segmenting one document.
type Result struct {
	Segments []model.Segment
	Strategy string
	// Degraded is set when the layout strategy was attempted but its output
	// violated coverage invariants and the fallback was used instead.
	Degraded bool
}

// Segmenter splits documents according to its sizing configuration.
type Segmenter struct {
	cfg config.SegmenterConfig
}

// New builds a segmenter, filling zero config values with defaults.
func New(cfg config.SegmenterConfig) *Segmenter {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = 5000
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 2 * cfg.TargetSize
	}
	if cfg.LayoutThreshold <= 0 {
		cfg.LayoutThreshold = 80000
	}
	if cfg.TableHardCap <= 0 {
		cfg.TableHardCap = max(15000, cfg.MaxSize)
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = 0
	}
	return &Segmenter{cfg: cfg}
}

// span is a half-open coverage interval over the document.
type span struct {
	start   int
	end     int
	isTable bool
}

// Segment splits the document text. Offsets in the returned segments index
// into text exactly as given, page markers included.
func (s *Segmenter) Segment(text string) Result {
	if len(text) == 0 {
		return Result{Strategy: StrategyFallback}
	}

	marks := detectPages(text)

	if len(text) > s.cfg.LayoutThreshold {
		zap.L().Debug("segmenter: document over layout threshold, using fallback",
			zap.Int("doc_len", len(text)),
			zap.Int("threshold", s.cfg.LayoutThreshold),
		)
		spans := s.fallbackSpans(text)
		return Result{
			Segments: s.finalize(text, spans, marks),
			Strategy: StrategyFallback,
		}
	}

	spans := s.layoutSpans(text)
	maxSpan := max(s.cfg.MaxSize, s.cfg.TableHardCap)
	if err := validateSpans(spans, len(text), maxSpan); err != nil {
		zap.L().Warn("segmenter: layout segmentation inconsistent, degrading to fallback",
			zap.Error(err),
			zap.Int("doc_len", len(text)),
		)
		return Result{
			Segments: s.finalize(text, s.fallbackSpans(text), marks),
			Strategy: StrategyFallback,
			Degraded: true,
		}
	}

	return Result{
		Segments: s.finalize(text, spans, marks),
		Strategy: StrategyLayout,
	}
}

// layoutSpans walks the document cutting at the structural boundary nearest
// each target-size checkpoint. Table regions become their own spans and are
// never cut through.
func (s *Segmenter) layoutSpans(text string) []span {
	lines := splitLines(text)
	bounds := detectBoundaries(text, lines)
	tables := detectTables(text, lines)

	var spans []span
	pos := 0
	for pos < len(text) {
		if tbl := tableContaining(tables, pos); tbl != nil {
			end := min(tbl.end, len(text))
			spans = append(spans, s.tableSpans(text, pos, end)...)
			pos = end
			continue
		}

		limit := min(pos+s.cfg.MaxSize, len(text))
		if tbl := nextTable(tables, pos); tbl != nil && tbl.start < limit {
			limit = tbl.start
		}

		if limit == len(text) && limit-pos <= s.cfg.TargetSize {
			spans = append(spans, span{start: pos, end: limit})
			break
		}

		cut := s.pickCut(text, bounds, pos, limit)
		spans = append(spans, span{start: pos, end: cut})
		pos = cut
	}
	return spans
}

// pickCut chooses the cut offset in (pos, limit]: the structural boundary
// nearest the target checkpoint, else the sentence end nearest it, else the
// limit itself.
func (s *Segmenter) pickCut(text string, bounds []int, pos, limit int) int {
	checkpoint := min(pos+s.cfg.TargetSize, limit)
	// Refuse cuts so early they would produce fragment segments.
	floor := pos + s.cfg.TargetSize/4
	if floor >= limit {
		floor = pos
	}

	best := -1
	for _, b := range bounds {
		if b <= floor {
			continue
		}
		if b > limit {
			break
		}
		if best < 0 || abs(b-checkpoint) < abs(best-checkpoint) {
			best = b
		}
	}
	if best > 0 {
		return best
	}
	return nearestSentenceCut(text, checkpoint, floor, limit)
}

// tableSpans emits a table region as its own span, subdividing by row groups
// when it exceeds the hard cap.
func (s *Segmenter) tableSpans(text string, start, end int) []span {
	if end-start <= s.cfg.TableHardCap {
		return []span{{start: start, end: end, isTable: true}}
	}
	var out []span
	pos := start
	for pos < end {
		cut := pos + s.cfg.TableHardCap
		if cut >= end {
			cut = end
		} else if nl := strings.LastIndexByte(text[pos:cut], '\n'); nl > 0 {
			cut = pos + nl + 1
		}
		out = append(out, span{start: pos, end: cut, isTable: true})
		pos = cut
	}
	return out
}

// fallbackSpans accumulates whole paragraphs greedily up to the target size.
// Paragraphs longer than the maximum are force-split at sentence boundaries.
func (s *Segmenter) fallbackSpans(text string) []span {
	paras := paragraphSpans(text)

	var out []span
	start := 0
	length := 0
	for _, p := range paras {
		plen := p.end - p.start

		if length > 0 && length+plen > s.cfg.MaxSize {
			out = append(out, span{start: start, end: p.start})
			start, length = p.start, 0
		}

		if plen > s.cfg.MaxSize {
			if length > 0 {
				out = append(out, span{start: start, end: p.start})
			}
			out = append(out, s.forceSplit(text, p.start, p.end)...)
			start, length = p.end, 0
			continue
		}

		length += plen
		if length >= s.cfg.TargetSize {
			out = append(out, span{start: start, end: p.end})
			start, length = p.end, 0
		}
	}
	if length > 0 {
		out = append(out, span{start: start, end: len(text)})
	}
	return out
}

// paragraphSpans covers the whole document with paragraph intervals. The
// blank-line separator attaches to the preceding paragraph so the union of
// spans is exactly [0, len(text)).
func paragraphSpans(text string) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(text)-1 {
		if text[i] == '\n' && text[i+1] == '\n' {
			j := i
			for j < len(text) && text[j] == '\n' {
				j++
			}
			spans = append(spans, span{start: start, end: j})
			start = j
			i = j
			continue
		}
		i++
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// forceSplit cuts an oversized region into max-bounded chunks at the sentence
// boundary nearest each target checkpoint. Falls back to a hard character cut
// when a chunk contains no sentence boundary at all.
func (s *Segmenter) forceSplit(text string, lo, hi int) []span {
	var out []span
	pos := lo
	for pos < hi {
		if hi-pos <= s.cfg.MaxSize {
			out = append(out, span{start: pos, end: hi})
			break
		}
		limit := pos + s.cfg.MaxSize
		floor := pos + s.cfg.TargetSize/4
		cut := nearestSentenceCut(text, pos+s.cfg.TargetSize, floor, limit)
		out = append(out, span{start: pos, end: cut})
		pos = cut
	}
	return out
}

// nearestSentenceCut finds the sentence or line end in (floor, limit] nearest
// the checkpoint, returning limit when none exists.
func nearestSentenceCut(text string, checkpoint, floor, limit int) int {
	best := -1
	for i := max(floor, 0); i < limit-1; i++ {
		var cut int
		switch text[i] {
		case '.', ';', '?', '!':
			if text[i+1] != ' ' && text[i+1] != '\n' {
				continue
			}
			cut = i + 2
		case '\n':
			cut = i + 1
		default:
			continue
		}
		if best < 0 || abs(cut-checkpoint) < abs(best-checkpoint) {
			best = cut
		}
	}
	if best <= floor {
		return limit
	}
	return best
}

// finalize converts coverage spans into segments: stable IDs, heading and
// page hints, and the fixed-size overlap tail prepended to each segment's
// text without extending its coverage offsets.
func (s *Segmenter) finalize(text string, spans []span, marks []pageMark) []model.Segment {
	segs := make([]model.Segment, len(spans))
	for i, sp := range spans {
		segText := text[sp.start:sp.end]
		overlap := 0
		if i > 0 && s.cfg.OverlapSize > 0 {
			tailStart := max(sp.start-s.cfg.OverlapSize, spans[i-1].start)
			overlap = sp.start - tailStart
			segText = text[tailStart:sp.start] + segText
		}
		segs[i] = model.Segment{
			ID:          fmt.Sprintf("seg-%03d", i),
			Index:       i,
			Text:        segText,
			StartOffset: sp.start,
			EndOffset:   sp.end,
			Overlap:     overlap,
			IsTable:     sp.isTable,
			Heading:     headingAt(text, sp.start),
			PageStart:   pageAt(marks, sp.start),
			PageEnd:     pageAt(marks, sp.end-1),
		}
	}
	return segs
}

func validateSpans(spans []span, docLen, maxSize int) error {
	segs := make([]model.Segment, len(spans))
	for i, sp := range spans {
		segs[i] = model.Segment{StartOffset: sp.start, EndOffset: sp.end}
	}
	return model.ValidateCoverage(segs, docLen, maxSize)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
