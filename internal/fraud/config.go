package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights maps each scoring rule to its tally contribution.
type Weights struct {
	HighAmount        int `yaml:"high_amount"`
	Velocity5m        int `yaml:"velocity_5m"`
	Velocity1h        int `yaml:"velocity_1h"`
	Velocity24h       int `yaml:"velocity_24h"`
	DeviceChange      int `yaml:"device_change"`
	GeoSpread         int `yaml:"geo_spread"`
	HighRiskMCC       int `yaml:"high_risk_mcc"`
	CrossBorder       int `yaml:"cross_border"`
	DisputeHeavy      int `yaml:"dispute_heavy"`
	DisputeAny        int `yaml:"dispute_any"`
	AmbiguousMerchant int `yaml:"ambiguous_merchant"`
}

// Limits holds the trigger conditions for each rule. The literal values are
// carried over from the reference policy for compatibility; they are not
// calibrated against a labeled dataset, and recalibrating them would need one.
type Limits struct {
	HighAmountCents         int64 `yaml:"high_amount_cents"`
	Velocity5mCount         int   `yaml:"velocity_5m_count"`
	Velocity1hCount         int   `yaml:"velocity_1h_count"`
	Velocity24hCount        int   `yaml:"velocity_24h_count"`
	DeviceRunLength         int   `yaml:"device_run_length"`
	GeoCountryCount         int   `yaml:"geo_country_count"`
	DisputeHeavyCount       int   `yaml:"dispute_heavy_count"`
	DisputeWindowDays       int   `yaml:"dispute_window_days"`
	RecurringCount          int   `yaml:"recurring_count"`
	RecurringSpreadPct      int64 `yaml:"recurring_spread_pct"`
	DuplicateToleranceCents int64 `yaml:"duplicate_tolerance_cents"`
}

// Thresholds defines the tally boundaries for the score tiers.
type Thresholds struct {
	High          int `yaml:"high"`           // tally >= High  => HIGH
	Medium        int `yaml:"medium"`         // tally >= Medium => MEDIUM
	MediumDispute int `yaml:"medium_dispute"` // MEDIUM band: tally >= this prefers OPEN_DISPUTE
}

// Config holds all scoring parameters.
type Config struct {
	Weights            Weights    `yaml:"weights"`
	Limits             Limits     `yaml:"limits"`
	Thresholds         Thresholds `yaml:"thresholds"`
	HighRiskMCCs       []string   `yaml:"high_risk_mccs"`
	AmbiguousMerchants []string   `yaml:"ambiguous_merchants"`
}

// DefaultConfig returns the built-in scoring parameters.
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			HighAmount:        30,
			Velocity5m:        50,
			Velocity1h:        15,
			Velocity24h:       10,
			DeviceChange:      25,
			GeoSpread:         30,
			HighRiskMCC:       20,
			CrossBorder:       15,
			DisputeHeavy:      25,
			DisputeAny:        10,
			AmbiguousMerchant: 10,
		},
		Limits: Limits{
			HighAmountCents:         100000,
			Velocity5mCount:         3,
			Velocity1hCount:         6,
			Velocity24hCount:        12,
			DeviceRunLength:         3,
			GeoCountryCount:         3,
			DisputeHeavyCount:       3,
			DisputeWindowDays:       90,
			RecurringCount:          3,
			RecurringSpreadPct:      10,
			DuplicateToleranceCents: 100,
		},
		Thresholds: Thresholds{
			High:          60,
			Medium:        30,
			MediumDispute: 40,
		},
		// Gambling, government lottery, outbound telemarketing.
		HighRiskMCCs: []string{"7995", "7800", "5966"},
		// Payment-intermediary descriptors that hide the real merchant.
		AmbiguousMerchants: []string{"paypal *", "sq *", "sp ", "payments", "web pmts"},
	}
}

// LoadConfig loads scoring config from a yaml file.
// An empty path returns the built-in defaults.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash is LoadConfig plus a content hash of the loaded file,
// recorded alongside decisions for provenance. Built-in defaults hash to
// the literal "builtin".
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		return DefaultConfig(), "builtin", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("fraud: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("fraud: parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", fmt.Errorf("fraud: invalid config: %w", err)
	}

	h := sha256.Sum256(data)
	return cfg, "sha256:" + hex.EncodeToString(h[:]), nil
}

func (c *Config) validate() error {
	if c.Thresholds.High <= c.Thresholds.Medium {
		return fmt.Errorf("thresholds.high (%d) must exceed thresholds.medium (%d)", c.Thresholds.High, c.Thresholds.Medium)
	}
	if c.Thresholds.Medium <= 0 {
		return fmt.Errorf("thresholds.medium must be > 0")
	}
	if c.Limits.HighAmountCents <= 0 {
		return fmt.Errorf("limits.high_amount_cents must be > 0")
	}
	if c.Limits.DuplicateToleranceCents < 0 {
		return fmt.Errorf("limits.duplicate_tolerance_cents must be >= 0")
	}
	return nil
}
