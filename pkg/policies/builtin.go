package policies

import (
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

const (
	GuestPolicy  = "guest"
	VendorPolicy = "vendor"
)

// Guest matches people being imported into a guest list. Email and phone are
// strong signals on their own; a name alone is only ever a potential match.
func Guest() matching.Policy {
	return matching.Policy{
		Name:        GuestPolicy,
		Description: "Guest list imports",
		Fields: []models.FieldSpec{
			{Name: "email", Comparison: models.ComparisonExactNormalized, Weight: 0.7, Normalizer: normalizers.Email, Label: "email address"},
			{Name: "phone", Comparison: models.ComparisonExactNormalized, Weight: 0.6, Normalizer: normalizers.Phone, Label: "phone number"},
			{Name: "name", Comparison: models.ComparisonFuzzy, Weight: 0.5, Normalizer: normalizers.Text},
		},
		Thresholds: matching.Thresholds{Potential: 0.4},
	}
}

// Vendor matches businesses submitted into the shared vendor directory. A shared
// business email, or the same name offering the same categories, is the same vendor.
func Vendor() matching.Policy {
	return matching.Policy{
		Name:        VendorPolicy,
		Description: "Vendor directory submissions",
		Fields: []models.FieldSpec{
			{Name: "name", Comparison: models.ComparisonFuzzy, Weight: 0.5, Normalizer: normalizers.Text},
			{Name: "categories", Comparison: models.ComparisonSetOverlap, Weight: 0.3, Normalizer: normalizers.Text},
			{Name: "email", Comparison: models.ComparisonExactNormalized, Weight: 0.7, Normalizer: normalizers.Email, Label: "email address"},
		},
		IdentitySets: [][]string{{"email"}, {"name", "categories"}},
		Thresholds:   matching.Thresholds{Potential: 0.4},
	}
}

// Builtin returns the built-in policies in a stable order
func Builtin() []matching.Policy {
	return []matching.Policy{Guest(), Vendor()}
}
