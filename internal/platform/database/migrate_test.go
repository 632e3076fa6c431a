package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSchema(t *testing.T) {
	ddl, err := RenderSchema(1536)

	require.NoError(t, err)
	assert.Contains(t, ddl, "embedding   vector(1536) NOT NULL")
	assert.Contains(t, ddl, "CREATE EXTENSION IF NOT EXISTS vector")
	assert.Contains(t, ddl, "url          TEXT NOT NULL UNIQUE")
	assert.NotContains(t, ddl, "{{")
}

func TestRenderSchema_InvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -1, 2001} {
		_, err := RenderSchema(dim)
		assert.Error(t, err, "dimension %d", dim)
	}
}

func TestGenerateLockID_Deterministic(t *testing.T) {
	a := GenerateLockID("article-rag", "migrate")
	b := GenerateLockID("article-rag", "migrate")
	c := GenerateLockID("article-rag", "other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestConnectionParams_DSN(t *testing.T) {
	params := ConnectionParams{Host: "localhost", Port: 5432, User: "rag", Password: "secret", DBName: "rag", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=rag password=secret dbname=rag sslmode=disable", params.DSN())

	params.URL = "postgres://rag:secret@db:5432/rag"
	assert.Equal(t, "postgres://rag:secret@db:5432/rag", params.DSN())
}
