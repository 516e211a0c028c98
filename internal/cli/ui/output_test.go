package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewKeyValueTable(&buf, true)
	table.AddRow("environment", "production")
	table.AddRow("cache.ttl", "5m0s")
	table.Render()

	assert.Equal(t, "environment: production\ncache.ttl:   5m0s\n", buf.String())
}

func TestKeyValueTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewKeyValueTable(&buf, true).Render()
	assert.Empty(t, buf.String())
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, true, "connected to %s", "sqlite")
	Failure(&buf, true, "bad config")

	assert.Equal(t, "✓ connected to sqlite\n✗ bad config\n", buf.String())
}
