package model

import "fmt"

// Category is the fixed classification vocabulary for segments. The
// classifier assigns exactly one category per segment; signature segments
// are excluded from extraction by default.
type Category string

const (
	CategoryFinancial    Category = "financial"
	CategoryParties      Category = "parties"
	CategoryTerm         Category = "term"
	CategoryUse          Category = "use"
	CategoryMaintenance  Category = "maintenance"
	CategoryAssignment   Category = "assignment"
	CategoryInsurance    Category = "insurance"
	CategoryDefault      Category = "default"
	CategoryTermination  Category = "termination"
	CategorySignature    Category = "signature"
	CategoryUnclassified Category = "unclassified"
)

// CriticalCategories are categories whose segments should carry substantive
// content. A critical segment with very little text is logged as suspicious
// during classification.
var CriticalCategories = map[Category]bool{
	CategoryFinancial: true,
	CategoryParties:   true,
	CategoryTerm:      true,
	CategoryUse:       true,
}

// Segment is a bounded, position-tracked span of source document text.
//
// Text may begin with up to Overlap characters copied from the tail of the
// previous segment to preserve cross-boundary context for extraction calls.
// StartOffset and EndOffset index into the original document and exclude the
// overlap region, so coverage accounting over offsets sees no duplication.
type Segment struct {
	ID          string   `json:"id"`
	Index       int      `json:"index"`
	Text        string   `json:"text"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	Overlap     int      `json:"overlap,omitempty"`
	Category    Category `json:"category,omitempty"`
	Excluded    bool     `json:"excluded,omitempty"`
	Heading     string   `json:"heading,omitempty"`
	IsTable     bool     `json:"is_table,omitempty"`

	// PageStart/PageEnd are 1-based page hints recovered from ingestion
	// page markers. Zero means unknown. Traceability only.
	PageStart int `json:"page_start,omitempty"`
	PageEnd   int `json:"page_end,omitempty"`
}

// Len returns the coverage length of the segment (overlap excluded).
func (s Segment) Len() int {
	return s.EndOffset - s.StartOffset
}

// ValidateCoverage checks the segmentation invariants: segments are ordered
// by start offset, contiguous (union of spans covers [0, docLen)), and no
// segment's coverage span exceeds maxSize. Returns the first violation found.
func ValidateCoverage(segments []Segment, docLen, maxSize int) error {
	if len(segments) == 0 {
		if docLen == 0 {
			return nil
		}
		return fmt.Errorf("no segments for %d-char document", docLen)
	}

	next := 0
	for i, s := range segments {
		if s.StartOffset != next {
			return fmt.Errorf("segment %d starts at %d, expected %d", i, s.StartOffset, next)
		}
		if s.EndOffset <= s.StartOffset {
			return fmt.Errorf("segment %d has empty span [%d,%d)", i, s.StartOffset, s.EndOffset)
		}
		if maxSize > 0 && s.Len() > maxSize {
			return fmt.Errorf("segment %d spans %d chars, max is %d", i, s.Len(), maxSize)
		}
		next = s.EndOffset
	}
	if next != docLen {
		return fmt.Errorf("segments end at %d, document is %d chars", next, docLen)
	}
	return nil
}
