package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/policies"
)

type fakeLoader struct {
	records    []models.Record
	err        error
	tenantID   string
	entityType string
	limit      int
	calls      int
}

func (f *fakeLoader) ListByEntityType(_ context.Context, tenantID, entityType string, limit int) ([]models.Record, error) {
	f.calls++
	f.tenantID = tenantID
	f.entityType = entityType
	f.limit = limit
	return f.records, f.err
}

type fakeCache struct {
	entries map[string][]byte
	gets    int
	sets    int
}

func (f *fakeCache) Get(_ context.Context, key string, dest any) (bool, error) {
	f.gets++
	raw, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeCache) Set(_ context.Context, key string, value any) error {
	f.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if f.entries == nil {
		f.entries = map[string][]byte{}
	}
	f.entries[key] = raw
	return nil
}

func newServer(t *testing.T, h *Handler) *echo.Echo {
	t.Helper()
	if h.Catalog == nil {
		catalog, err := policies.NewCatalog(policies.Builtin())
		require.NoError(t, err)
		h.Catalog = catalog
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error()
	e.Use(middleware.Context(zap.NewNop()))
	h.Register(e.Group("/api/v1/dedup"))
	return e
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const guestBatch = `{
	"candidates": [
		{"fields": {"name": "Amarjeet Singh", "email": "a.singh@example.com"}},
		{"fields": {"name": "Priya Raman", "email": "dup@example.com"}},
		{"fields": {"name": "P. Raman", "email": "DUP@example.com", "phone": null}}
	],
	"references": [
		{"id": "guest-17", "label": "Amarjeet Singh", "fields": {"name": "Amarjeet Singh", "email": "a.singh@example.com"}}
	]
}`

func TestPreview_InlineReferences(t *testing.T) {
	e := newServer(t, &Handler{})

	rec := do(e, http.MethodPost, "/api/v1/dedup/guest/preview", guestBatch, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Empty(t, rec.Header().Get(HeaderCache))

	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.DuplicatesWithExisting, 1)
	cross := resp.DuplicatesWithExisting[0]
	assert.Equal(t, 0, cross.CandidateIndex)
	assert.Equal(t, "guest-17", cross.Match.ReferenceID)
	assert.InDelta(t, 1.2, cross.Match.Score, 1e-9)
	assert.Equal(t, models.DecisionPotential, cross.Decision)

	require.Len(t, resp.DuplicatesInBatch, 1)
	assert.Equal(t, 1, resp.DuplicatesInBatch[0].CandidateIndex1)
	assert.Equal(t, 2, resp.DuplicatesInBatch[0].CandidateIndex2)

	assert.False(t, resp.HasExactMatch)
	assert.Len(t, resp.BatchFingerprint, 64)
}

func TestPreview_ThresholdOverride(t *testing.T) {
	e := newServer(t, &Handler{})
	body := `{
		"candidates": [{"fields": {"name": "Jon Smith"}}],
		"references": [{"id": "guest-1", "fields": {"name": "John Smith"}}],
		"threshold": %s
	}`

	rec := do(e, http.MethodPost, "/api/v1/dedup/guest/preview", strings.Replace(body, "%s", "0.4", 1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var strict PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &strict))
	assert.Empty(t, strict.DuplicatesWithExisting)

	rec = do(e, http.MethodPost, "/api/v1/dedup/guest/preview", strings.Replace(body, "%s", "0.3", 1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loose PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loose))
	require.Len(t, loose.DuplicatesWithExisting, 1)
	assert.Equal(t, models.DecisionNoMatch, loose.DuplicatesWithExisting[0].Decision)
	assert.NotEqual(t, strict.BatchFingerprint, loose.BatchFingerprint)
}

func TestPreview_LoadsReferencesForTenant(t *testing.T) {
	loader := &fakeLoader{records: []models.Record{
		models.NewRecord("vendor-1", "Sunrise Catering", map[string]string{"name": "Sunrise Catering", "email": "info@sunrise.com", "categories": "Catering"}),
	}}
	e := newServer(t, &Handler{References: loader, ReferenceLimit: 500})

	rec := do(e, http.MethodPost, "/api/v1/dedup/vendor/preview",
		`{"candidates": [{"fields": {"name": "Other Name", "email": "INFO@sunrise.com"}}]}`,
		map[string]string{middleware.HeaderTenantID: "tenant-a"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, "tenant-a", loader.tenantID)
	assert.Equal(t, "vendor", loader.entityType)
	assert.Equal(t, 500, loader.limit)

	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.DuplicatesWithExisting, 1)
	assert.True(t, resp.HasExactMatch)
	assert.Equal(t, models.DecisionExact, resp.DuplicatesWithExisting[0].Decision)
	assert.Equal(t, "Exact identity match on email", resp.DuplicatesWithExisting[0].Match.Reasons[0])
}

func TestPreview_ReferenceEntityTypeOverride(t *testing.T) {
	loader := &fakeLoader{}
	e := newServer(t, &Handler{References: loader})

	rec := do(e, http.MethodPost, "/api/v1/dedup/guest/preview",
		`{"candidates": [], "reference_entity_type": "attendee"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attendee", loader.entityType)
}

func TestPreview_Cache(t *testing.T) {
	cache := &fakeCache{}
	e := newServer(t, &Handler{Cache: cache})

	first := do(e, http.MethodPost, "/api/v1/dedup/guest/preview", guestBatch, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(HeaderCache))
	assert.Equal(t, 1, cache.sets)

	second := do(e, http.MethodPost, "/api/v1/dedup/guest/preview", guestBatch, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(HeaderCache))
	assert.Equal(t, 1, cache.sets)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestPreview_CacheKeyedByPolicyConfig(t *testing.T) {
	cache := &fakeCache{}
	builtin := newServer(t, &Handler{Cache: cache})

	reweighted := policies.Guest()
	reweighted.Fields[0].Weight = 0.2
	catalog, err := policies.NewCatalog([]matching.Policy{reweighted, policies.Vendor()})
	require.NoError(t, err)
	custom := newServer(t, &Handler{Cache: cache, Catalog: catalog})

	first := do(builtin, http.MethodPost, "/api/v1/dedup/guest/preview", guestBatch, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(HeaderCache))

	second := do(custom, http.MethodPost, "/api/v1/dedup/guest/preview", guestBatch, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "MISS", second.Header().Get(HeaderCache))
	assert.Equal(t, 2, cache.sets)
	assert.Len(t, cache.entries, 2)
}

func TestPreview_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler *Handler
		path    string
		body    string
		status  int
		message string
	}{
		{
			name:    "unknown policy",
			handler: &Handler{},
			path:    "/api/v1/dedup/venue/preview",
			body:    `{"candidates": []}`,
			status:  http.StatusNotFound,
			message: "unknown policy",
		},
		{
			name:    "missing candidates",
			handler: &Handler{},
			path:    "/api/v1/dedup/guest/preview",
			body:    `{"references": []}`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "malformed json",
			handler: &Handler{},
			path:    "/api/v1/dedup/guest/preview",
			body:    `{"candidates": [`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "no references and no store",
			handler: &Handler{},
			path:    "/api/v1/dedup/guest/preview",
			body:    `{"candidates": []}`,
			status:  http.StatusBadRequest,
			message: "references are required when no reference store is configured",
		},
		{
			name:    "reference without id",
			handler: &Handler{},
			path:    "/api/v1/dedup/guest/preview",
			body:    `{"candidates": [], "references": [{"fields": {"name": "x"}}]}`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "negative threshold",
			handler: &Handler{},
			path:    "/api/v1/dedup/guest/preview",
			body:    `{"candidates": [], "references": [], "threshold": -1}`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "store failure",
			handler: &Handler{References: &fakeLoader{err: errors.New("connection refused")}},
			path:    "/api/v1/dedup/guest/preview",
			body:    `{"candidates": []}`,
			status:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(t, tt.handler)
			rec := do(e, http.MethodPost, tt.path, tt.body, map[string]string{echo.HeaderXRequestID: "req-1"})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "req-1", resp.RequestID)
			if tt.message != "" {
				assert.Contains(t, resp.Message, tt.message)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	e := newServer(t, &Handler{})

	rec := do(e, http.MethodPost, "/api/v1/dedup/vendor/check", `{
		"candidate": {"fields": {"name": "Sunrise Catering", "email": "INFO@sunrise.com", "categories": "Catering"}},
		"references": [
			{"id": "vendor-1", "fields": {"name": "Sunrise Catering", "email": "info@sunrise.com", "categories": "Catering"}},
			{"id": "vendor-2", "fields": {"name": "Sunrise Caterers", "categories": "Catering, Desserts"}},
			{"id": "vendor-3", "fields": {"name": "Moonlight DJ", "categories": "DJ"}}
		]
	}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DecisionExact, resp.Decision)
	assert.True(t, resp.HasExactMatch)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, "vendor-1", resp.Matches[0].Match.ReferenceID)
	assert.Equal(t, "vendor-2", resp.Matches[1].Match.ReferenceID)

	rec = do(e, http.MethodPost, "/api/v1/dedup/vendor/check", `{
		"candidate": {"fields": {"name": "Brand New Florist"}},
		"references": [{"id": "vendor-3", "fields": {"name": "Moonlight DJ"}}]
	}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DecisionNoMatch, resp.Decision)
	assert.Empty(t, resp.Matches)
}

func TestListPolicies(t *testing.T) {
	e := newServer(t, &Handler{})

	rec := do(e, http.MethodGet, "/api/v1/dedup/policies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []PolicySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, policies.GuestPolicy, resp[0].Name)
	assert.InDelta(t, 1.8, resp[0].MaxScore, 1e-9)
	assert.Equal(t, policies.VendorPolicy, resp[1].Name)
	assert.InDelta(t, 1.5, resp[1].MaxScore, 1e-9)
	assert.Equal(t, [][]string{{"email"}, {"name", "categories"}}, resp[1].IdentitySets)
}
