package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// NewSelectBuilder returns a select builder producing $n placeholders
func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}
