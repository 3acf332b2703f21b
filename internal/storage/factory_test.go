package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/storage/memory"
	"github.com/tabletop-racing/racecontrol/internal/storage/postgres"
	sqlitestorage "github.com/tabletop-racing/racecontrol/internal/storage/sqlite"
)

var (
	_ Backend  = (*memory.Backend)(nil)
	_ Exporter = (*memory.Backend)(nil)
	_ Backend  = (*sqlitestorage.Backend)(nil)
	_ Backend  = (*postgres.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		storageType string
		want        any
	}{
		{"memory", &memory.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
		{"postgres", &postgres.Backend{}},
	}

	for _, tt := range tests {
		t.Run(tt.storageType, func(t *testing.T) {
			b, err := NewBackend(config.StorageConfig{Type: tt.storageType}, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend(config.StorageConfig{Type: "websocket"}, nil)
	assert.ErrorContains(t, err, "unknown storage type")
}
