package config

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for reserve server configuration
const (
	EnvReservePort             = "RESERVE_PORT"
	EnvReserveLeafTag          = "RESERVE_LEAF_TAG"
	EnvReserveBranchTag        = "RESERVE_BRANCH_TAG"
	EnvReserveAllowSharedTag   = "RESERVE_ALLOW_SHARED_TAG"
	EnvReservePersistenceType  = "RESERVE_PERSISTENCE_TYPE"
	EnvReserveBadgerDir        = "RESERVE_BADGER_DIR"
	EnvReserveRedisAddress     = "RESERVE_REDIS_ADDRESS"
	EnvReserveRedisPassword    = "RESERVE_REDIS_PASSWORD"
	EnvReserveRedisDB          = "RESERVE_REDIS_DB"
	EnvReserveRedisKeyPrefix   = "RESERVE_REDIS_KEY_PREFIX"
	EnvReserveRebuildHour      = "RESERVE_REBUILD_HOUR"
	EnvReserveRateLimit        = "RESERVE_RATE_LIMIT"
	EnvReserveRateBurst        = "RESERVE_RATE_BURST"
	EnvReserveSeedDemoData     = "RESERVE_SEED_DEMO_DATA"
	EnvReserveVerbose          = "RESERVE_VERBOSE"
	EnvReserveClientServerURL  = "RESERVE_SERVER_URL"
	EnvReserveClientTimeoutSec = "RESERVE_CLIENT_TIMEOUT_SECONDS"
)

// Tags used by the reserve application for leaves and branches
const (
	DefaultLeafTag   = "ProofOfReserve_Leaf"
	DefaultBranchTag = "ProofOfReserve_Branch"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// GetSupportedPersistenceTypes returns all supported persistence backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{
		PersistenceTypeMemory,
		PersistenceTypeBadger,
		PersistenceTypeRedis,
	}
}

// GetSupportedPersistenceTypesString returns supported backends as a string for CLI help
func GetSupportedPersistenceTypesString() string {
	supported := GetSupportedPersistenceTypes()
	names := make([]string, len(supported))
	for i, p := range supported {
		names[i] = p.String()
	}
	return strings.Join(names, ", ")
}

// RedisSettings holds the connection settings of the redis backend
type RedisSettings struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// PersistenceConfig selects and configures the record store
type PersistenceConfig struct {
	Type      PersistenceType `json:"type"`
	BadgerDir string          `json:"badger_dir"`
	Redis     RedisSettings   `json:"redis"`
}

// ReserveServerConfig represents the complete configuration for a reserve server
type ReserveServerConfig struct {
	Port int `json:"port"`

	// Tree configuration
	LeafTag        string `json:"leaf_tag"`
	BranchTag      string `json:"branch_tag"`
	AllowSharedTag bool   `json:"allow_shared_tag"` // permit LeafTag == BranchTag

	Persistence PersistenceConfig `json:"persistence"`

	// RebuildHourUTC is the hour of day (0-23, UTC) at which the root is rebuilt
	RebuildHourUTC int `json:"rebuild_hour_utc"`

	// Query throttling: requests per second and burst size
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// SeedDemoData loads a fixed demo dataset into an empty store on startup
	SeedDemoData bool `json:"seed_demo_data"`

	// Verbose enables debug logging and a startup config dump
	Verbose bool `json:"verbose"`
}

// NewDefaultReserveServerConfig returns a configuration with the reference defaults
func NewDefaultReserveServerConfig() *ReserveServerConfig {
	return &ReserveServerConfig{
		Port:      8080,
		LeafTag:   DefaultLeafTag,
		BranchTag: DefaultBranchTag,
		Persistence: PersistenceConfig{
			Type:      PersistenceTypeMemory,
			BadgerDir: "./data/reserve",
			Redis: RedisSettings{
				Address: "localhost:6379",
			},
		},
		RebuildHourUTC: 0,
		RateLimit:      50,
		RateBurst:      100,
	}
}

// Validate validates the reserve server configuration
func (c *ReserveServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	if c.LeafTag == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("leafTag"), "leafTag is required"))
	}
	if c.BranchTag == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("branchTag"), "branchTag is required"))
	}
	if c.LeafTag != "" && c.LeafTag == c.BranchTag && !c.AllowSharedTag {
		allErrors = append(allErrors, field.Invalid(field.NewPath("branchTag"), c.BranchTag,
			"branchTag must differ from leafTag unless allowSharedTag is set"))
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if c.RebuildHourUTC < 0 || c.RebuildHourUTC > 23 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rebuildHourUTC"), c.RebuildHourUTC, "hour must be between 0-23"))
	}

	if c.RateLimit <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "rateLimit must be greater than 0"))
	}
	if c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "rateBurst must be at least 1"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (p *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch p.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if p.BadgerDir == "" {
			allErrors = append(allErrors, field.Required(path.Child("badgerDir"), "badgerDir is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if p.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "address is required for redis persistence"))
		}
		if p.Redis.DB < 0 || p.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), p.Redis.DB, "db must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), p.Type, persistenceTypeStrings()))
	}

	return allErrors
}

func persistenceTypeStrings() []string {
	supported := GetSupportedPersistenceTypes()
	out := make([]string, len(supported))
	for i, p := range supported {
		out[i] = p.String()
	}
	return out
}

// NewMerkleTree returns the tree configuration described by the tags
func (c *ReserveServerConfig) NewMerkleTree() (*merkle.MerkleTree, error) {
	mt, err := merkle.NewMerkleTree(c.LeafTag, c.BranchTag)
	if err != nil {
		return nil, fmt.Errorf("failed to create merkle tree: %w", err)
	}
	return mt, nil
}

// ReserveClientConfig configures the audit client
type ReserveClientConfig struct {
	ServerURL      string `json:"server_url"`
	LeafTag        string `json:"leaf_tag"`
	BranchTag      string `json:"branch_tag"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Validate validates the client configuration
func (c *ReserveClientConfig) Validate() error {
	var allErrors field.ErrorList
	if c.ServerURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("serverURL"), "serverURL is required"))
	} else if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("serverURL"), c.ServerURL, "serverURL must start with http:// or https://"))
	}
	if c.LeafTag == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("leafTag"), "leafTag is required"))
	}
	if c.BranchTag == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("branchTag"), "branchTag is required"))
	}
	if c.TimeoutSeconds < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("timeoutSeconds"), c.TimeoutSeconds, "timeoutSeconds must be at least 1"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
