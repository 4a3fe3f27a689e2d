package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddress())

	t.Setenv("MOCK_GRID_HTTP_PORT", ":9000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddress())
}
