// Package classifier assigns each segment exactly one category from the
// fixed lease vocabulary using keyword rules, and marks signature/notary
// boilerplate for exclusion from extraction. Classification is deterministic
// and idempotent: re-running it over classified segments changes nothing.
package classifier

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
)

// minCriticalChars flags suspiciously thin segments in categories that
// should carry substantive lease content.
const minCriticalChars = 200

// phrases score higher than single words: they are far less ambiguous.
const (
	wordWeight    = 1
	phraseWeight  = 2
	headingWeight = 3
)

var categoryKeywords = map[model.Category][]string{
	model.CategoryFinancial: {
		"base rent", "additional rent", "percentage rent", "security deposit",
		"operating expenses", "common area maintenance", "late fee",
		"rent", "deposit", "escalation", "taxes", "cam", "abatement",
	},
	model.CategoryParties: {
		"landlord", "tenant", "lessor", "lessee", "guarantor",
		"notices", "parties",
	},
	model.CategoryTerm: {
		"commencement date", "expiration date", "option to extend",
		"renewal option", "lease term", "holdover", "commencement",
		"expiration", "renewal",
	},
	model.CategoryUse: {
		"permitted use", "exclusive use", "continuous operation",
		"signage", "premises shall be used",
	},
	model.CategoryMaintenance: {
		"maintenance", "repair", "alterations", "improvements", "hvac",
		"common areas", "janitorial",
	},
	model.CategoryAssignment: {
		"assignment", "sublease", "sublet", "transfer of interest",
		"consent of landlord",
	},
	model.CategoryInsurance: {
		"insurance", "liability", "indemnify", "indemnification",
		"casualty", "waiver of subrogation",
	},
	model.CategoryDefault: {
		"event of default", "default", "breach", "remedies", "cure period",
	},
	model.CategoryTermination: {
		"early termination", "termination", "surrender", "condemnation",
		"eminent domain",
	},
}

type rule struct {
	category model.Category
	keyword  string
	weight   int
	re       *regexp.Regexp
}

// Classifier classifies segments using compiled keyword rules.
type Classifier struct {
	exclusionMaxChars int
	rules             []rule
}

// New compiles the category rules plus the configured signature vocabulary.
func New(cfg config.ClassifierConfig) *Classifier {
	if cfg.ExclusionMaxChars <= 0 {
		cfg.ExclusionMaxChars = 1500
	}

	var rules []rule
	for cat, keywords := range categoryKeywords {
		for _, kw := range keywords {
			rules = append(rules, compileRule(cat, kw))
		}
	}
	for _, kw := range cfg.SignatureKeywords {
		rules = append(rules, compileRule(model.CategorySignature, kw))
	}

	return &Classifier{
		exclusionMaxChars: cfg.ExclusionMaxChars,
		rules:             rules,
	}
}

func compileRule(cat model.Category, keyword string) rule {
	weight := wordWeight
	if strings.ContainsRune(keyword, ' ') {
		weight = phraseWeight
	}
	return rule{
		category: cat,
		keyword:  keyword,
		weight:   weight,
		re:       regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(keyword)) + `\b`),
	}
}

// Classify assigns categories and exclusion flags in place and returns the
// slice. A segment is excluded only when it is signature-dominated AND
// shorter than the exclusion ceiling: long signature-scored segments stay in,
// since a false exclusion silently drops extractable data.
func (c *Classifier) Classify(segments []model.Segment) []model.Segment {
	for i := range segments {
		seg := &segments[i]
		seg.Category, seg.Excluded = c.classifyOne(*seg)

		zap.L().Debug("classifier: segment classified",
			zap.String("segment", seg.ID),
			zap.String("category", string(seg.Category)),
			zap.Bool("excluded", seg.Excluded),
			zap.Int("len", seg.Len()),
		)

		if model.CriticalCategories[seg.Category] && seg.Len() < minCriticalChars {
			zap.L().Warn("classifier: critical section has very little content",
				zap.String("segment", seg.ID),
				zap.String("category", string(seg.Category)),
				zap.Int("len", seg.Len()),
			)
		}
	}
	return segments
}

func (c *Classifier) classifyOne(seg model.Segment) (model.Category, bool) {
	text := strings.ToLower(seg.Text)
	heading := strings.ToLower(seg.Heading)

	scores := make(map[model.Category]int)
	for _, r := range c.rules {
		if n := len(r.re.FindAllStringIndex(text, -1)); n > 0 {
			scores[r.category] += n * r.weight
		}
		if heading != "" && r.re.MatchString(heading) {
			scores[r.category] += headingWeight
		}
	}

	best := model.CategoryUnclassified
	bestScore := 0
	// Deterministic winner: iterate a fixed order, strict improvement wins.
	for _, cat := range categoryOrder {
		if s := scores[cat]; s > bestScore {
			best, bestScore = cat, s
		}
	}

	excluded := best == model.CategorySignature && seg.Len() < c.exclusionMaxChars
	return best, excluded
}

// categoryOrder fixes tie-breaking: earlier categories win equal scores.
// Signature is last so boilerplate never shadows substantive content on ties.
var categoryOrder = []model.Category{
	model.CategoryFinancial,
	model.CategoryParties,
	model.CategoryTerm,
	model.CategoryUse,
	model.CategoryMaintenance,
	model.CategoryAssignment,
	model.CategoryInsurance,
	model.CategoryDefault,
	model.CategoryTermination,
	model.CategorySignature,
}
