package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/collab/pkg/collab"
)

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"", DirectionDependencies, false},
		{"dependencies", DirectionDependencies, false},
		{"dependents", DirectionDependents, false},
		{"both", DirectionBoth, false},
		{"sideways", DirectionDependencies, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, collab.ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "dependencies", DirectionDependencies.String())
	assert.Equal(t, "dependents", DirectionDependents.String())
	assert.Equal(t, "both", DirectionBoth.String())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, 20, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 10000, cfg.L1CacheSize)
}
