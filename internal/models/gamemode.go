// internal/models/gamemode.go
package models

import "fmt"

// MemeForge gamemode bounds. Out-of-range values are rejected outright;
// only absent (zero) fields fall back to defaults.
const (
	DefaultRounds = 3
	MinRounds     = 1
	MaxRounds     = 10

	DefaultTimeLimitSec = 180
	MinTimeLimitSec     = 60
	MaxTimeLimitSec     = 600

	DefaultRerolls = 5
	MinRerolls     = 0
	MaxRerolls     = 10

	// MaxCaptionLen caps caption text on submissions.
	MaxCaptionLen = 100

	// VotingTimeLimitSec is the advisory voting window shown to clients.
	VotingTimeLimitSec = 30
)

// MemeForgeConfig is the host-chosen configuration for a MemeForge game.
type MemeForgeConfig struct {
	Rounds           int      `json:"rounds"`
	TimeLimitSec     int      `json:"time_limit"`
	RerollsPerPlayer int      `json:"rerolls"`
	TemplateTags     []string `json:"template_tags,omitempty"`
}

// DefaultMemeForgeConfig returns a config with every setting at its default.
// Handlers decode the host's body over this value, so omitted fields keep
// their defaults while an explicit zero (a no-reroll game) survives.
func DefaultMemeForgeConfig() MemeForgeConfig {
	return MemeForgeConfig{
		Rounds:           DefaultRounds,
		TimeLimitSec:     DefaultTimeLimitSec,
		RerollsPerPlayer: DefaultRerolls,
	}
}

// ApplyDefaults fills zero-valued Rounds and TimeLimitSec with the gamemode
// defaults. RerollsPerPlayer is left alone: zero is a legitimate setting,
// and absent-versus-zero is resolved at decode time by seeding the decode
// target with DefaultMemeForgeConfig.
func (c *MemeForgeConfig) ApplyDefaults() {
	if c.Rounds == 0 {
		c.Rounds = DefaultRounds
	}
	if c.TimeLimitSec == 0 {
		c.TimeLimitSec = DefaultTimeLimitSec
	}
}

// Validate rejects configurations outside the declared bounds.
func (c *MemeForgeConfig) Validate() error {
	if c.Rounds < MinRounds || c.Rounds > MaxRounds {
		return fmt.Errorf("rounds must be between %d and %d, got %d", MinRounds, MaxRounds, c.Rounds)
	}
	if c.TimeLimitSec < MinTimeLimitSec || c.TimeLimitSec > MaxTimeLimitSec {
		return fmt.Errorf("time limit must be between %d and %d seconds, got %d", MinTimeLimitSec, MaxTimeLimitSec, c.TimeLimitSec)
	}
	if c.RerollsPerPlayer < MinRerolls || c.RerollsPerPlayer > MaxRerolls {
		return fmt.Errorf("rerolls must be between %d and %d, got %d", MinRerolls, MaxRerolls, c.RerollsPerPlayer)
	}
	return nil
}

// SettingSpec describes one host-configurable setting so a client can
// render the configuration form without hardcoding gamemode knowledge.
type SettingSpec struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Default  int      `json:"default,omitempty"`
	Min      int      `json:"min,omitempty"`
	Max      int      `json:"max,omitempty"`
	Multiple bool     `json:"multiple,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// GameModeDescriptor is the static registry entry for a gamemode. Modes are
// plain data looked up by key; there is no per-mode handler type.
type GameModeDescriptor struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	Settings []SettingSpec `json:"settings"`
}

// TemplateTagOptions are the tags a host may constrain template selection by.
var TemplateTagOptions = []string{"NSFW", "animated"}

var gameModes = map[string]GameModeDescriptor{
	"memeforge": {
		Key:  "memeforge",
		Name: "MemeForge",
		Settings: []SettingSpec{
			{Key: "rounds", Label: "Number of Rounds", Type: "number", Default: DefaultRounds, Min: MinRounds, Max: MaxRounds},
			{Key: "time_limit", Label: "Time Limit per Round (Seconds)", Type: "number", Default: DefaultTimeLimitSec, Min: MinTimeLimitSec, Max: MaxTimeLimitSec},
			{Key: "rerolls", Label: "Rerolls Per Player", Type: "number", Default: DefaultRerolls, Min: MinRerolls, Max: MaxRerolls},
			{Key: "template_tags", Label: "Template Tags", Type: "select", Multiple: true, Options: TemplateTagOptions},
		},
	},
}

// GameModeByKey looks up a registered gamemode descriptor.
func GameModeByKey(key string) (GameModeDescriptor, bool) {
	d, ok := gameModes[key]
	return d, ok
}

// GameModeList returns every registered gamemode descriptor.
func GameModeList() []GameModeDescriptor {
	out := make([]GameModeDescriptor, 0, len(gameModes))
	for _, d := range gameModes {
		out = append(out, d)
	}
	return out
}
