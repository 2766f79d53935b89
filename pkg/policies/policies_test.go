package policies

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

const sampleFile = `
policies:
  - name: guest
    description: stricter guest matching
    fields:
      - {name: email, comparison: exact_normalized, weight: 0.7, normalizer: email, label: email address}
      - {name: name, comparison: fuzzy, weight: 0.5}
    thresholds:
      exact: 1.2
      potential: 0.5
  - name: venue
    fields:
      - {name: name, comparison: fuzzy, weight: 0.6}
      - {name: address, comparison: fuzzy, weight: 0.4, normalizer: text}
    identity_sets:
      - [name, address]
    thresholds:
      potential: 0.5
`

func TestBuiltin(t *testing.T) {
	catalog, err := NewCatalog(Builtin())
	require.NoError(t, err)
	assert.Equal(t, []string{GuestPolicy, VendorPolicy}, catalog.Names())

	guest, ok := catalog.Get(GuestPolicy)
	require.True(t, ok)
	assert.InDelta(t, 1.8, guest.MaxScore(), 1e-9)

	vendor, ok := catalog.Get(VendorPolicy)
	require.True(t, ok)
	assert.InDelta(t, 1.5, vendor.MaxScore(), 1e-9)

	_, ok = catalog.Get("venue")
	assert.False(t, ok)
}

func TestVendor_SameBusinessIsExact(t *testing.T) {
	engine, err := matching.NewEngine(Vendor())
	require.NoError(t, err)

	got, err := engine.Check(context.Background(),
		models.NewRecord("", "", map[string]string{"name": "Sunrise Catering", "email": "info@sunrise.com"}),
		[]models.Record{models.NewRecord("vendor-9", "Sunrise Catering", map[string]string{"name": "Sunrise Catering", "email": "info@sunrise.com"})},
	)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.DecisionExact, got[0].Decision)
	assert.InDelta(t, engine.MaxScore(), got[0].Match.Score, 1e-9)
}

func TestParse(t *testing.T) {
	got, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "guest", got[0].Name)
	assert.Equal(t, matching.Thresholds{Exact: 1.2, Potential: 0.5}, got[0].Thresholds)
	assert.Equal(t, models.ComparisonExactNormalized, got[0].Fields[0].Comparison)
	assert.Equal(t, "email address", got[0].Fields[0].Label)
	assert.Equal(t, [][]string{{"name", "address"}}, got[1].IdentitySets)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"not yaml":        "policies: [",
		"no policies":     "policies: []",
		"missing name":    "policies:\n  - fields:\n      - {name: a, comparison: fuzzy, weight: 1}\n",
		"no fields":       "policies:\n  - name: x\n",
		"negative weight": "policies:\n  - name: x\n    fields:\n      - {name: a, comparison: fuzzy, weight: -1}\n",
		"duplicate name":  "policies:\n  - name: x\n    fields: [{name: a, comparison: fuzzy, weight: 1}]\n  - name: x\n    fields: [{name: a, comparison: fuzzy, weight: 1}]\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, matching.IsConfigurationError(err))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	catalog, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{GuestPolicy, VendorPolicy, "venue"}, catalog.Names())

	guest, _ := catalog.Get(GuestPolicy)
	assert.Equal(t, "stricter guest matching", guest.Policy().Description)
	assert.InDelta(t, 1.2, guest.MaxScore(), 1e-9)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	builtins, err := Load("")
	require.NoError(t, err)
	assert.Len(t, builtins.Policies(), 2)
}

func TestNewCatalog_InvalidPolicy(t *testing.T) {
	bad := Guest()
	bad.Fields[0].Normalizer = "soundex"

	_, err := NewCatalog([]matching.Policy{bad})
	var cfgErr *matching.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, GuestPolicy, cfgErr.Policy)

	_, err = NewCatalog([]matching.Policy{Guest(), Guest()})
	assert.True(t, matching.IsConfigurationError(err))
}
