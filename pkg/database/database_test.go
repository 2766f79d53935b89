package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_Scan(t *testing.T) {
	var j JSONB[map[string]*string]
	require.NoError(t, j.Scan([]byte(`{"email":"a@example.com","phone":null}`)))
	require.NotNil(t, j.Data["email"])
	assert.Equal(t, "a@example.com", *j.Data["email"])
	assert.Nil(t, j.Data["phone"])

	require.NoError(t, j.Scan(`{"name":"x"}`))
	assert.Equal(t, "x", *j.Data["name"])

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j.Data)

	assert.Error(t, j.Scan(42))
}

func TestJSONB_Value(t *testing.T) {
	v, err := JSONB[[]string]{Data: []string{"a"}}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`["a"]`), v)
}

func TestNewSelectBuilder_PostgresPlaceholders(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("id").From("t").Where(sb.Equal("a", 1), sb.Equal("b", 2))
	query, args := sb.Build()
	assert.Equal(t, "SELECT id FROM t WHERE a = $1 AND b = $2", query)
	assert.Equal(t, []any{1, 2}, args)
}

func TestOpen(t *testing.T) {
	db, err := Open("postgres", "postgres://u:p@localhost:5432/clover?sslmode=disable", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 2})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 5, db.Stats().MaxOpenConnections)

	_, err = Open("no-such-driver", "", PoolConfig{})
	assert.Error(t, err)
}
