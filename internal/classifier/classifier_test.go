package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/lease-abstract/internal/config"
	"github.com/sells-group/lease-abstract/internal/model"
)

func testClassifier() *Classifier {
	return New(config.ClassifierConfig{
		ExclusionMaxChars: 1500,
		SignatureKeywords: []string{
			"signature", "notary", "witness", "in witness whereof", "executed", "seal",
		},
	})
}

func seg(id, heading, text string) model.Segment {
	return model.Segment{ID: id, Heading: heading, Text: text, EndOffset: len(text)}
}

func TestClassify_Categories(t *testing.T) {
	c := testClassifier()

	cases := []struct {
		name string
		seg  model.Segment
		want model.Category
	}{
		{
			"financial",
			seg("s1", "4. RENT", "Tenant shall pay base rent of $4,500 per month plus additional rent for operating expenses and taxes."),
			model.CategoryFinancial,
		},
		{
			"parties",
			seg("s2", "", "This lease is entered into between Acme Holdings LLC, as Landlord, and Beta Retail Inc., as Tenant. Notices to the parties shall be sent to the addresses below."),
			model.CategoryParties,
		},
		{
			"term",
			seg("s3", "2. TERM", "The lease term commences on the commencement date and expires on the expiration date, subject to one renewal option of five years."),
			model.CategoryTerm,
		},
		{
			"insurance",
			seg("s4", "", "Tenant shall maintain commercial general liability insurance and shall indemnify Landlord against all claims. The parties agree to a mutual waiver of subrogation."),
			model.CategoryInsurance,
		},
		{
			"assignment",
			seg("s5", "", "Tenant shall not enter into any assignment or sublease without the prior written consent of Landlord."),
			model.CategoryAssignment,
		},
		{
			"unclassified",
			seg("s6", "", "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt."),
			model.CategoryUnclassified,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify([]model.Segment{tc.seg})
			assert.Equal(t, tc.want, got[0].Category)
			assert.False(t, got[0].Excluded)
		})
	}
}

func TestClassify_ShortSignatureBlockExcluded(t *testing.T) {
	c := testClassifier()
	text := "IN WITNESS WHEREOF, the parties have executed this lease under seal.\n\nLANDLORD: _______________\nTENANT: _______________\nNotary Public, witness my signature."
	got := c.Classify([]model.Segment{seg("sig", "", text)})

	assert.Equal(t, model.CategorySignature, got[0].Category)
	assert.True(t, got[0].Excluded)
}

func TestClassify_LongSignatureScoredSegmentStaysIn(t *testing.T) {
	c := testClassifier()
	// Signature vocabulary dominates, but the segment is too long to be pure
	// boilerplate: exclusion would risk dropping data.
	text := "This lease may be executed in counterparts, each bearing an original signature, acknowledged before a notary. " +
		strings.Repeat("Additional provisions apply to each counterpart original as described herein. ", 25)
	require.Greater(t, len(text), 1500)

	got := c.Classify([]model.Segment{{ID: "x", Text: text, EndOffset: len(text)}})
	assert.Equal(t, model.CategorySignature, got[0].Category)
	assert.False(t, got[0].Excluded)
}

func TestClassify_Idempotent(t *testing.T) {
	c := testClassifier()
	segs := []model.Segment{
		seg("a", "4. RENT", "Tenant shall pay base rent monthly."),
		seg("b", "", "IN WITNESS WHEREOF the parties set their signature before a notary."),
	}

	first := c.Classify(segs)
	again := make([]model.Segment, len(first))
	copy(again, first)
	second := c.Classify(again)

	assert.Equal(t, first, second)
}

func TestClassify_HeadingOutweighsBodyNoise(t *testing.T) {
	c := testClassifier()
	s := seg("h", "ARTICLE 7 INSURANCE", "The requirements of this article survive expiration of the lease.")
	got := c.Classify([]model.Segment{s})
	assert.Equal(t, model.CategoryInsurance, got[0].Category)
}

func TestClassify_WarnsOnThinCriticalSegment(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(prev)

	c := testClassifier()
	c.Classify([]model.Segment{seg("thin", "", "Base rent: $100.")})

	entries := logs.FilterMessageSnippet("critical section").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "thin", entries[0].ContextMap()["segment"])
}
