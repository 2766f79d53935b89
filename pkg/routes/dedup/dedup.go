package dedup

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	reqctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/cache"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/logger"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/policies"
	"github.com/Ramsey-B/clover/pkg/reference"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// HeaderCache reports whether a preview was served from the cache
const HeaderCache = "X-Cache"

// Cache stores preview responses
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Handler serves duplicate checks for every policy in a catalog.
// References and Cache are optional.
type Handler struct {
	Catalog        *policies.Catalog
	References     reference.Loader
	Cache          Cache
	ReferenceLimit int
}

// Register registers dedup routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/policies", h.ListPolicies)
	g.POST("/:policy/preview", h.Preview)
	g.POST("/:policy/check", h.Check)
}

type PolicySummary struct {
	matching.Policy
	MaxScore float64 `json:"max_score"`
}

type PreviewRequest struct {
	Candidates          []models.Record `json:"candidates" validate:"required"`
	References          []models.Record `json:"references"`
	ReferenceEntityType string          `json:"reference_entity_type"`
	Threshold           *float64        `json:"threshold" validate:"omitempty,gte=0"`
}

type PreviewResponse struct {
	DuplicatesWithExisting []models.ClassifiedMatch `json:"duplicates_with_existing"`
	DuplicatesInBatch      []models.ClassifiedPair  `json:"duplicates_in_batch"`
	HasExactMatch          bool                     `json:"has_exact_match"`
	BatchFingerprint       string                   `json:"batch_fingerprint"`
}

type CheckRequest struct {
	Candidate           models.Record   `json:"candidate"`
	References          []models.Record `json:"references"`
	ReferenceEntityType string          `json:"reference_entity_type"`
}

type CheckResponse struct {
	Decision      models.Decision          `json:"decision"`
	HasExactMatch bool                     `json:"has_exact_match"`
	Matches       []models.ClassifiedMatch `json:"matches"`
}

// ListPolicies lists the loaded policies
func (h *Handler) ListPolicies(c echo.Context) error {
	out := make([]PolicySummary, 0)
	for _, name := range h.Catalog.Names() {
		engine, _ := h.Catalog.Get(name)
		out = append(out, PolicySummary{Policy: engine.Policy(), MaxScore: engine.MaxScore()})
	}
	return c.JSON(http.StatusOK, out)
}

// Preview resolves a batch against the reference population and within itself
func (h *Handler) Preview(c echo.Context) error {
	ctx := c.Request().Context()

	engine, err := h.engine(c)
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[PreviewRequest](c)
	if err != nil {
		return err
	}

	refs, err := h.references(ctx, engine, req.References, req.ReferenceEntityType)
	if err != nil {
		return err
	}

	threshold := engine.Policy().Thresholds.Potential
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	fp := fingerprint.Batch(engine.Digest(), threshold, req.Candidates, refs)
	fp := fingerprint.Batch(policy, threshold, req.Candidates, refs)
	key := cache.Key(policy, fp)

	if h.Cache != nil {
		var cached PreviewResponse
		found, err := h.Cache.Get(ctx, key, &cached)
		if err != nil {
			logger.FromContext(ctx).Warn("Preview cache read failed", zap.Error(err))
		}
		if found {
			c.Response().Header().Set(HeaderCache, "HIT")
			return c.JSON(http.StatusOK, cached)
		}
	}

	result, err := engine.ResolveWithThreshold(ctx, req.Candidates, refs, threshold)
	if err != nil {
		return err
	}

	classified := engine.Classified(result)
	resp := PreviewResponse{
		DuplicatesWithExisting: classified,
		DuplicatesInBatch:      engine.ClassifiedPairs(result),
		HasExactMatch:          matching.HasExactMatch(classified),
		BatchFingerprint:       fp,
	}

	if h.Cache != nil {
		if err := h.Cache.Set(ctx, key, resp); err != nil {
			logger.FromContext(ctx).Warn("Preview cache write failed", zap.Error(err))
		}
		c.Response().Header().Set(HeaderCache, "MISS")
	}

	return c.JSON(http.StatusOK, resp)
}

// Check classifies a single candidate against the reference population
func (h *Handler) Check(c echo.Context) error {
	ctx := c.Request().Context()

	engine, err := h.engine(c)
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[CheckRequest](c)
	if err != nil {
		return err
	}

	refs, err := h.references(ctx, engine, req.References, req.ReferenceEntityType)
	if err != nil {
		return err
	}

	matches, err := engine.Check(ctx, req.Candidate, refs)
	if err != nil {
		return err
	}

	decision := models.DecisionNoMatch
	if matching.HasExactMatch(matches) {
		decision = models.DecisionExact
	} else if len(matches) > 0 {
		decision = models.DecisionPotential
	}

	return c.JSON(http.StatusOK, CheckResponse{
		Decision:      decision,
		HasExactMatch: decision == models.DecisionExact,
		Matches:       matches,
	})
}

func (h *Handler) engine(c echo.Context) (*matching.Engine, error) {
	name := c.Param("policy")
	engine, ok := h.Catalog.Get(name)
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "unknown policy").AddMetaValue("policy", name)
	}
	return engine, nil
}

// references returns the inline population when given, otherwise loads the
// tenant's stored records for entityType, which defaults to the policy name
func (h *Handler) references(ctx context.Context, engine *matching.Engine, inline []models.Record, entityType string) ([]models.Record, error) {
	if inline != nil {
		return inline, nil
	}
	if h.References == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "references are required when no reference store is configured")
	}
	if entityType == "" {
		entityType = engine.Policy().Name
	}
	return h.References.ListByEntityType(ctx, reqctx.GetTenantID(ctx), entityType, h.ReferenceLimit)
}
