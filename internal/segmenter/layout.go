package segmenter

import (
	"regexp"
	"strings"
)

// Structural boundary detection for layout-aware segmentation. A boundary is
// an offset at which a cut keeps both sides semantically coherent: section
// headings, numbered clauses, all-caps titles, and paragraph breaks.

var (
	sectionHeadingRe = regexp.MustCompile(`(?i)^\s*(ARTICLE|SECTION|EXHIBIT|SCHEDULE|ADDENDUM)\s+[IVXLC\d]`)
	numberedClauseRe = regexp.MustCompile(`^\s*(\d+(\.\d+)*[.)]|\d+(\.\d+)+)\s+\S`)
	pageMarkerRe     = regexp.MustCompile(`---\s*PAGE\s+(\d+)\s*---`)
)

// line is one physical line with its offset into the document.
type line struct {
	start int
	end   int // exclusive, excludes the newline
	text  string
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, line{start: start, end: i, text: text[start:i]})
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, line{start: start, end: len(text), text: text[start:]})
	}
	return lines
}

func isHeadingLine(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	if sectionHeadingRe.MatchString(s) || numberedClauseRe.MatchString(s) {
		return true
	}
	// Short all-caps lines are almost always titles in OCR'd leases.
	if len(trimmed) >= 3 && len(trimmed) <= 80 {
		hasLetter := false
		for _, r := range trimmed {
			if r >= 'a' && r <= 'z' {
				return false
			}
			if r >= 'A' && r <= 'Z' {
				hasLetter = true
			}
		}
		return hasLetter
	}
	return false
}

// isTabularLine reports whether a line looks like a table row: pipe
// separators, tabs, or multiple wide space runs between cells.
func isTabularLine(s string) bool {
	if strings.Count(s, "|") >= 2 || strings.Count(s, "\t") >= 2 {
		return true
	}
	runs := 0
	spaces := 0
	inText := false
	for _, r := range s {
		if r == ' ' {
			spaces++
			continue
		}
		if spaces >= 3 && inText {
			runs++
		}
		spaces = 0
		inText = true
	}
	return runs >= 2
}

// tableRegion is a detected span of consecutive tabular lines.
type tableRegion struct {
	start int
	end   int
}

// detectTables finds runs of 3+ tabular lines. Blank lines inside a run do
// not break it, since OCR often inserts them between table rows. Regions
// include the trailing newline of their last row.
func detectTables(text string, lines []line) []tableRegion {
	var regions []tableRegion
	runStart := -1
	tabular := 0

	flush := func(endOffset int) {
		if runStart >= 0 && tabular >= 3 {
			if endOffset < len(text) && text[endOffset] == '\n' {
				endOffset++
			}
			regions = append(regions, tableRegion{start: runStart, end: endOffset})
		}
		runStart = -1
		tabular = 0
	}

	lastEnd := 0
	for _, ln := range lines {
		switch {
		case isTabularLine(ln.text):
			if runStart < 0 {
				runStart = ln.start
			}
			tabular++
			lastEnd = ln.end
		case strings.TrimSpace(ln.text) == "" && runStart >= 0:
			// blank line inside a potential table: tolerated
		default:
			flush(lastEnd)
			lastEnd = ln.end
		}
	}
	flush(lastEnd)
	return regions
}

// tableContaining returns the region covering offset, or nil.
func tableContaining(regions []tableRegion, offset int) *tableRegion {
	for i := range regions {
		if regions[i].start <= offset && offset < regions[i].end {
			return &regions[i]
		}
	}
	return nil
}

// nextTable returns the first region starting after offset, or nil.
func nextTable(regions []tableRegion, offset int) *tableRegion {
	for i := range regions {
		if regions[i].start > offset {
			return &regions[i]
		}
	}
	return nil
}

// detectBoundaries returns sorted cut offsets: starts of heading lines and
// starts of lines that follow a blank-line run. Offset 0 is never a boundary.
func detectBoundaries(text string, lines []line) []int {
	var bounds []int
	prevBlank := false
	for _, ln := range lines {
		blank := strings.TrimSpace(ln.text) == ""
		if ln.start > 0 && !blank && (prevBlank || isHeadingLine(ln.text)) {
			bounds = append(bounds, ln.start)
		}
		prevBlank = blank
	}
	return bounds
}

// headingAt returns the heading text starting at the given offset, if any.
func headingAt(text string, offset int) string {
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	candidate := text[offset : offset+end]
	if isHeadingLine(candidate) {
		return strings.TrimSpace(candidate)
	}
	return ""
}

// pageMark records that a given offset begins content for a page.
type pageMark struct {
	offset int
	page   int
}

// detectPages parses ingestion page markers of the form "--- PAGE n ---".
func detectPages(text string) []pageMark {
	var marks []pageMark
	for _, m := range pageMarkerRe.FindAllStringSubmatchIndex(text, -1) {
		page := 0
		for _, c := range text[m[2]:m[3]] {
			page = page*10 + int(c-'0')
		}
		marks = append(marks, pageMark{offset: m[0], page: page})
	}
	return marks
}

// pageAt returns the page containing the given offset, or 0 when unknown.
func pageAt(marks []pageMark, offset int) int {
	page := 0
	for _, m := range marks {
		if m.offset > offset {
			break
		}
		page = m.page
	}
	return page
}
