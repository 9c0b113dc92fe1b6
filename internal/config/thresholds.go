package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

// LoadThresholds layers scoring constants, low to high precedence:
//  1. domain.DefaultThresholds
//  2. YAML file at path, if non-empty
//  3. env vars prefixed SCORING_ (SCORING_TELEPORT_SPEED -> teleport_speed)
func LoadThresholds(path string) (domain.Thresholds, error) {
	th := domain.DefaultThresholds()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return th, fmt.Errorf("load scoring config %s: %w", path, err)
		}
	}

	envProvider := env.Provider("SCORING_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "SCORING_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return th, fmt.Errorf("load scoring env: %w", err)
	}

	if err := k.UnmarshalWithConf("", &th, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return th, fmt.Errorf("decode scoring config: %w", err)
	}

	if th.SpeedLow > th.TeleportSpeed || th.TeleportSpeed > th.SpeedHigh {
		return th, fmt.Errorf("scoring config: speed tiers must satisfy speed_low <= teleport_speed <= speed_high")
	}
	if th.AltLow > th.AltHigh || th.TurnLow > th.TurnHigh {
		return th, fmt.Errorf("scoring config: low tiers must not exceed high tiers")
	}
	return th, nil
}
