package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDocumentCategory(t *testing.T) {
	assert.Equal(t, CategoryRetailLease, ParseDocumentCategory("retail"))
	assert.Equal(t, CategoryOfficeLease, ParseDocumentCategory("office"))
	assert.Equal(t, CategoryGenericLease, ParseDocumentCategory(""))
	assert.Equal(t, CategoryGenericLease, ParseDocumentCategory("warehouse"))
}

func TestDefaultFieldRegistry_CategorySets(t *testing.T) {
	reg := DefaultFieldRegistry()

	generic := reg.ExpectedFor(CategoryGenericLease)
	retail := reg.ExpectedFor(CategoryRetailLease)

	assert.Greater(t, len(retail), len(generic), "retail extends the core set")

	names := make(map[string]bool)
	for _, f := range retail {
		names[f.Name] = true
	}
	assert.True(t, names["percentage_rent"])
	assert.True(t, names["base_rent"])
}

func TestFieldRegistry_CategoryOf(t *testing.T) {
	reg := DefaultFieldRegistry()

	assert.Equal(t, CategoryFinancial, reg.CategoryOf(CategoryGenericLease, "base_rent"))
	assert.Equal(t, CategoryParties, reg.CategoryOf(CategoryGenericLease, "tenant"))
	assert.Equal(t, CategoryUnclassified, reg.CategoryOf(CategoryGenericLease, "made_up_field"))
}

func TestRunDiagnostics_Degraded(t *testing.T) {
	d := &RunDiagnostics{}
	assert.False(t, d.Degraded())

	d.SkippedPasses = []string{"derived"}
	assert.True(t, d.Degraded())

	d = &RunDiagnostics{
		Segments: []SegmentOutcome{
			{SegmentID: "s0", PassState: map[string]CallStatus{"clauses": StatusOK}},
			{SegmentID: "s1", PassState: map[string]CallStatus{"clauses": StatusTimeout}},
		},
	}
	assert.True(t, d.Degraded())
}

func TestSegmentOutcome_Failed(t *testing.T) {
	o := SegmentOutcome{PassState: map[string]CallStatus{
		"structure": StatusTimeout,
		"clauses":   StatusTimeout,
	}}
	assert.True(t, o.Failed())

	o.PassState["clauses"] = StatusOK
	assert.False(t, o.Failed())

	assert.False(t, SegmentOutcome{}.Failed())
}
