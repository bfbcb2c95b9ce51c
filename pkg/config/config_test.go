package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveServerConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *ReserveServerConfig)
		wantErr string
	}{
		{
			name:   "Defaults are valid",
			mutate: func(c *ReserveServerConfig) {},
		},
		{
			name:    "Port out of range",
			mutate:  func(c *ReserveServerConfig) { c.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "Empty leaf tag",
			mutate:  func(c *ReserveServerConfig) { c.LeafTag = "" },
			wantErr: "leafTag",
		},
		{
			name:    "Empty branch tag",
			mutate:  func(c *ReserveServerConfig) { c.BranchTag = "" },
			wantErr: "branchTag",
		},
		{
			name: "Shared tag rejected",
			mutate: func(c *ReserveServerConfig) {
				c.LeafTag = "Bitcoin_Transaction"
				c.BranchTag = "Bitcoin_Transaction"
			},
			wantErr: "must differ from leafTag",
		},
		{
			name: "Shared tag allowed",
			mutate: func(c *ReserveServerConfig) {
				c.LeafTag = "Bitcoin_Transaction"
				c.BranchTag = "Bitcoin_Transaction"
				c.AllowSharedTag = true
			},
		},
		{
			name:    "Unknown persistence type",
			mutate:  func(c *ReserveServerConfig) { c.Persistence.Type = "postgres" },
			wantErr: "persistence.type",
		},
		{
			name: "Badger without directory",
			mutate: func(c *ReserveServerConfig) {
				c.Persistence.Type = PersistenceTypeBadger
				c.Persistence.BadgerDir = ""
			},
			wantErr: "persistence.badgerDir",
		},
		{
			name: "Redis without address",
			mutate: func(c *ReserveServerConfig) {
				c.Persistence.Type = PersistenceTypeRedis
				c.Persistence.Redis.Address = ""
			},
			wantErr: "persistence.redis.address",
		},
		{
			name: "Redis db out of range",
			mutate: func(c *ReserveServerConfig) {
				c.Persistence.Type = PersistenceTypeRedis
				c.Persistence.Redis.DB = 16
			},
			wantErr: "persistence.redis.db",
		},
		{
			name:    "Rebuild hour out of range",
			mutate:  func(c *ReserveServerConfig) { c.RebuildHourUTC = 24 },
			wantErr: "rebuildHourUTC",
		},
		{
			name:    "Zero rate limit",
			mutate:  func(c *ReserveServerConfig) { c.RateLimit = 0 },
			wantErr: "rateLimit",
		},
		{
			name:    "Zero burst",
			mutate:  func(c *ReserveServerConfig) { c.RateBurst = 0 },
			wantErr: "rateBurst",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultReserveServerConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestReserveServerConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := NewDefaultReserveServerConfig()
	cfg.Port = 0
	cfg.RebuildHourUTC = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "rebuildHourUTC")
}

func TestReserveServerConfig_NewMerkleTree(t *testing.T) {
	cfg := NewDefaultReserveServerConfig()

	mt, err := cfg.NewMerkleTree()
	require.NoError(t, err)
	assert.Equal(t, DefaultLeafTag, mt.Hasher().LeafTag())
	assert.Equal(t, DefaultBranchTag, mt.Hasher().BranchTag())
}

func TestGetSupportedPersistenceTypesString(t *testing.T) {
	assert.Equal(t, "memory, badger, redis", GetSupportedPersistenceTypesString())
}

func TestReserveClientConfig_Validate(t *testing.T) {
	valid := ReserveClientConfig{
		ServerURL:      "http://localhost:8080",
		LeafTag:        DefaultLeafTag,
		BranchTag:      DefaultBranchTag,
		TimeoutSeconds: 10,
	}
	require.NoError(t, valid.Validate())

	noScheme := valid
	noScheme.ServerURL = "localhost:8080"
	require.Error(t, noScheme.Validate())

	noTimeout := valid
	noTimeout.TimeoutSeconds = 0
	require.Error(t, noTimeout.Validate())
}
