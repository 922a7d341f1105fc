package game

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Difficulty names one of the preset game profiles.
type Difficulty string

// Supported difficulty presets.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ErrUnknownDifficulty is returned when a difficulty name is not one of the
// presets. Unknown names are rejected rather than silently mapped to a default.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Profile holds the tuning knobs for one difficulty level. Durations are
// fixed once a round starts.
type Profile struct {
	MoleTimeout   time.Duration // how long a mole stays up before it counts as a miss
	MinSpawnDelay time.Duration // lower bound on the pause between moles
	MaxSpawnDelay time.Duration // upper bound on the pause between moles
	RoundDuration time.Duration
}

// Validate checks that the profile's durations are usable.
func (p Profile) Validate() error {
	if p.MoleTimeout <= 0 {
		return fmt.Errorf("mole_timeout must be > 0")
	}
	if p.MinSpawnDelay < 0 {
		return fmt.Errorf("min_delay must be >= 0")
	}
	if p.MaxSpawnDelay < p.MinSpawnDelay {
		return fmt.Errorf("max_delay must be >= min_delay")
	}
	if p.RoundDuration <= 0 {
		return fmt.Errorf("round_duration must be > 0")
	}
	return nil
}

// Profiles maps difficulty names to their tuning profiles. The name set is
// closed; lookups outside it fail.
type Profiles map[Difficulty]Profile

// DefaultProfiles returns the built-in presets.
func DefaultProfiles() Profiles {
	return Profiles{
		DifficultyEasy: {
			MoleTimeout:   2 * time.Second,
			MinSpawnDelay: 1 * time.Second,
			MaxSpawnDelay: 1500 * time.Millisecond,
			RoundDuration: 60 * time.Second,
		},
		DifficultyMedium: {
			MoleTimeout:   1500 * time.Millisecond,
			MinSpawnDelay: 300 * time.Millisecond,
			MaxSpawnDelay: 1 * time.Second,
			RoundDuration: 60 * time.Second,
		},
		DifficultyHard: {
			MoleTimeout:   1 * time.Second,
			MinSpawnDelay: 100 * time.Millisecond,
			MaxSpawnDelay: 500 * time.Millisecond,
			RoundDuration: 45 * time.Second,
		},
	}
}

// AllDifficulties returns the preset names in display order.
func AllDifficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// Get resolves a difficulty name to its profile.
func (p Profiles) Get(name string) (Difficulty, Profile, error) {
	difficulty := Difficulty(name)
	profile, ok := p[difficulty]
	if !ok {
		return "", Profile{}, fmt.Errorf("%w: %q", ErrUnknownDifficulty, name)
	}
	return difficulty, profile, nil
}

// profileSpec is the on-disk form of a profile override. Times are seconds.
type profileSpec struct {
	MoleTimeout   float64 `yaml:"mole_timeout"`
	MinDelay      float64 `yaml:"min_delay"`
	MaxDelay      float64 `yaml:"max_delay"`
	RoundDuration float64 `yaml:"round_duration"`
}

// LoadProfiles returns the default presets, optionally overlaid with tuning
// values from a YAML file. The file may adjust preset numbers but cannot
// introduce new difficulty names. An empty path means defaults only.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var specs map[string]profileSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	for name, spec := range specs {
		difficulty := Difficulty(name)
		profile, ok := profiles[difficulty]
		if !ok {
			return nil, fmt.Errorf("%w in profiles file: %q", ErrUnknownDifficulty, name)
		}
		if spec.MoleTimeout > 0 {
			profile.MoleTimeout = secondsToDuration(spec.MoleTimeout)
		}
		if spec.MinDelay > 0 {
			profile.MinSpawnDelay = secondsToDuration(spec.MinDelay)
		}
		if spec.MaxDelay > 0 {
			profile.MaxSpawnDelay = secondsToDuration(spec.MaxDelay)
		}
		if spec.RoundDuration > 0 {
			profile.RoundDuration = secondsToDuration(spec.RoundDuration)
		}
		if err := profile.Validate(); err != nil {
			return nil, fmt.Errorf("invalid profile %q: %w", name, err)
		}
		profiles[difficulty] = profile
	}

	return profiles, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
