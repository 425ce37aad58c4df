package model

// DocumentCategory is the caller-declared document type, used only to select
// the expected-field set for completeness scoring and pass selection.
type DocumentCategory string

const (
	CategoryRetailLease     DocumentCategory = "retail"
	CategoryOfficeLease     DocumentCategory = "office"
	CategoryIndustrialLease DocumentCategory = "industrial"
	CategoryGenericLease    DocumentCategory = "generic"
)

// ParseDocumentCategory maps a raw string to a known category, defaulting to
// generic for anything unrecognized.
func ParseDocumentCategory(s string) DocumentCategory {
	switch DocumentCategory(s) {
	case CategoryRetailLease, CategoryOfficeLease, CategoryIndustrialLease:
		return DocumentCategory(s)
	default:
		return CategoryGenericLease
	}
}

// ExpectedField declares a field the aggregator expects to resolve for a
// document category, and the segment category it belongs to in the output.
type ExpectedField struct {
	Name     string
	Category Category
}

// FieldRegistry holds the expected-field sets per document category.
type FieldRegistry struct {
	byCategory map[DocumentCategory][]ExpectedField
}

// NewFieldRegistry builds a registry from explicit per-category field sets.
func NewFieldRegistry(byCategory map[DocumentCategory][]ExpectedField) *FieldRegistry {
	return &FieldRegistry{byCategory: byCategory}
}

// DefaultFieldRegistry returns the built-in expected-field sets. Every lease
// category shares a common core; retail adds percentage-rent and co-tenancy
// fields, office adds building services and operating expenses.
func DefaultFieldRegistry() *FieldRegistry {
	core := []ExpectedField{
		{Name: "landlord", Category: CategoryParties},
		{Name: "tenant", Category: CategoryParties},
		{Name: "premises", Category: CategoryUse},
		{Name: "permitted_use", Category: CategoryUse},
		{Name: "commencement_date", Category: CategoryTerm},
		{Name: "expiration_date", Category: CategoryTerm},
		{Name: "base_rent", Category: CategoryFinancial},
		{Name: "security_deposit", Category: CategoryFinancial},
		{Name: "insurance_requirements", Category: CategoryInsurance},
		{Name: "assignment_rights", Category: CategoryAssignment},
		{Name: "maintenance_obligations", Category: CategoryMaintenance},
		{Name: "default_remedies", Category: CategoryDefault},
		{Name: "termination_rights", Category: CategoryTermination},
	}

	retail := append([]ExpectedField{}, core...)
	retail = append(retail,
		ExpectedField{Name: "percentage_rent", Category: CategoryFinancial},
		ExpectedField{Name: "co_tenancy", Category: CategoryUse},
		ExpectedField{Name: "operating_hours", Category: CategoryUse},
	)

	office := append([]ExpectedField{}, core...)
	office = append(office,
		ExpectedField{Name: "operating_expenses", Category: CategoryFinancial},
		ExpectedField{Name: "building_services", Category: CategoryMaintenance},
	)

	industrial := append([]ExpectedField{}, core...)
	industrial = append(industrial,
		ExpectedField{Name: "hazardous_materials", Category: CategoryUse},
		ExpectedField{Name: "environmental_compliance", Category: CategoryUse},
	)

	return NewFieldRegistry(map[DocumentCategory][]ExpectedField{
		CategoryRetailLease:     retail,
		CategoryOfficeLease:     office,
		CategoryIndustrialLease: industrial,
		CategoryGenericLease:    core,
	})
}

// ExpectedFor returns the expected fields for the given document category,
// falling back to the generic set.
func (r *FieldRegistry) ExpectedFor(cat DocumentCategory) []ExpectedField {
	if fields, ok := r.byCategory[cat]; ok {
		return fields
	}
	return r.byCategory[CategoryGenericLease]
}

// CategoryOf returns the output category for a field name, or unclassified
// when the field is not in any expected set.
func (r *FieldRegistry) CategoryOf(cat DocumentCategory, field string) Category {
	for _, f := range r.ExpectedFor(cat) {
		if f.Name == field {
			return f.Category
		}
	}
	return CategoryUnclassified
}
