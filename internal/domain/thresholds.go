package domain

// Thresholds holds the tier boundaries and penalty weights used by the scorer.
// The values are empirical; DefaultThresholds preserves the production set.
type Thresholds struct {
	// Speed tiers in km/h. Speeds above TeleportSpeed emit a teleport event.
	SpeedLow      float64 `koanf:"speed_low"`
	TeleportSpeed float64 `koanf:"teleport_speed"`
	SpeedHigh     float64 `koanf:"speed_high"`

	// Altitude delta tiers between consecutive valid samples.
	AltLow  float64 `koanf:"alt_low"`
	AltHigh float64 `koanf:"alt_high"`

	// Turn angle tiers in degrees.
	TurnLow  float64 `koanf:"turn_low"`
	TurnHigh float64 `koanf:"turn_high"`

	MissingWeight float64 `koanf:"missing_weight"`
	MaxGapWeight  float64 `koanf:"max_gap_weight"`

	SpeedLowWeight  float64 `koanf:"speed_low_weight"`
	SpeedMidWeight  float64 `koanf:"speed_mid_weight"`
	SpeedHighWeight float64 `koanf:"speed_high_weight"`
	TeleportCap     float64 `koanf:"teleport_cap"`

	TurnLowWeight  float64 `koanf:"turn_low_weight"`
	TurnHighWeight float64 `koanf:"turn_high_weight"`

	AltLowWeight  float64 `koanf:"alt_low_weight"`
	AltHighWeight float64 `koanf:"alt_high_weight"`
}

// DefaultThresholds returns the production scoring constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpeedLow:      200,
		TeleportSpeed: 350,
		SpeedHigh:     600,

		AltLow:  5,
		AltHigh: 10,

		TurnLow:  90,
		TurnHigh: 135,

		MissingWeight: 2,
		MaxGapWeight:  5,

		SpeedLowWeight:  6,
		SpeedMidWeight:  10,
		SpeedHighWeight: 14,
		TeleportCap:     45,

		TurnLowWeight:  2,
		TurnHighWeight: 5,

		AltLowWeight:  1,
		AltHighWeight: 3,
	}
}
