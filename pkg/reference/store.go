// Package reference loads the stored population that candidates are matched against.
package reference

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/logger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tableName = "reference_records"

// Loader returns the reference population for an entity type
type Loader interface {
	ListByEntityType(ctx context.Context, tenantID, entityType string, limit int) ([]models.Record, error)
}

type row struct {
	ID         string                             `db:"id"`
	EntityType string                             `db:"entity_type"`
	Label      string                             `db:"label"`
	Fields     database.JSONB[map[string]*string] `db:"fields"`
}

// Store reads reference records from Postgres. It never writes.
type Store struct {
	db       database.DB
	log      logger.Logger
	observer func(entityType string, elapsed time.Duration)
}

// NewStore creates a store. observer, when not nil, receives each load's duration.
func NewStore(db database.DB, log logger.Logger, observer func(entityType string, elapsed time.Duration)) *Store {
	return &Store{db: db, log: logger.OrNop(log), observer: observer}
}

// ListByEntityType returns up to limit live records of one entity type for a
// tenant, ordered by id so repeated loads produce identical match output.
// A limit of 0 or less loads every record.
func (s *Store) ListByEntityType(ctx context.Context, tenantID, entityType string, limit int) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "reference.Store.ListByEntityType",
		attribute.String("entity_type", entityType),
	)
	defer span.End()

	start := time.Now()

	sb := database.NewSelectBuilder()
	sb.Select("id", "entity_type", "label", "fields")
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}
	query, args := sb.Build()

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		tracing.RecordError(span, err)
		s.log.Error("failed to list reference records", zap.String("entity_type", entityType), zap.Error(err))
		return nil, fmt.Errorf("failed to list reference records: %w", err)
	}

	records := make([]models.Record, 0, len(rows))
	for _, r := range rows {
		fields := r.Fields.Data
		if fields == nil {
			fields = map[string]*string{}
		}
		records = append(records, models.Record{ID: r.ID, Label: r.Label, Fields: fields})
	}

	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer(entityType, elapsed)
	}
	span.SetAttributes(attribute.Int("reference_count", len(records)))
	s.log.Debug("Loaded reference records",
		zap.String("entity_type", entityType),
		zap.Int("reference_count", len(records)),
		zap.Duration("elapsed", elapsed),
	)
	return records, nil
}
