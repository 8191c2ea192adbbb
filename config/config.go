// Package config loads the runtime configuration named in §6.5: sandbox
// resource caps, matchmaker cadence, gamemode selection, and rating
// turbulence. Values are read from a config file plus environment
// overrides via github.com/spf13/viper, generalising the teacher's
// "defaults struct, override from environment" two-step shape to a
// proper layered loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SandboxConfig mirrors the submission_runner.sandbox_* keys.
type SandboxConfig struct {
	Image               string
	MemoryLimit         string        `mapstructure:"sandbox_memory_limit"`
	CPUCount            float64       `mapstructure:"sandbox_cpu_count"`
	UnrunTimeoutSeconds int           `mapstructure:"sandbox_unrun_timeout_seconds"`
	RunTimeoutSeconds   int           `mapstructure:"sandbox_run_timeout_seconds"`
}

// UnrunTimeout is the provisioning-phase wall clock budget.
func (s SandboxConfig) UnrunTimeout() time.Duration {
	return time.Duration(s.UnrunTimeoutSeconds) * time.Second
}

// RunTimeout is the in-container execution wall clock budget.
func (s SandboxConfig) RunTimeout() time.Duration {
	return time.Duration(s.RunTimeoutSeconds) * time.Second
}

// MemoryBytes parses MemoryLimit (e.g. "256M", "1G") into bytes.
func (s SandboxConfig) MemoryBytes() (int64, error) {
	return parseMemoryLimit(s.MemoryLimit)
}

// RunnerConfig mirrors the remaining submission_runner.* keys.
type RunnerConfig struct {
	Matchmakers          int `mapstructure:"matchmakers"`
	UntestedMatchmakers  int `mapstructure:"untested_matchmakers"`
	TargetSecondsPerGame int `mapstructure:"target_seconds_per_game"`
}

// GamemodeConfig mirrors the gamemode.* keys.
type GamemodeConfig struct {
	ID      string         `mapstructure:"id"`
	Options map[string]any `mapstructure:"options"`
}

// RatingConfig mirrors the rating keys: initial_score and score_turbulence.
type RatingConfig struct {
	InitialScore    float64 `mapstructure:"initial_score"`
	ScoreTurbulence float64 `mapstructure:"score_turbulence"`
}

// Runtime is the fully-loaded configuration tree §6.5 recognises.
type Runtime struct {
	Debug          bool           `mapstructure:"debug"`
	Profile        bool           `mapstructure:"profile"`
	MaxRepoSizeBytes int64        `mapstructure:"max_repo_size_bytes"`
	SubmissionRunner SandboxAndRunner `mapstructure:"submission_runner"`
	Gamemode       GamemodeConfig `mapstructure:"gamemode"`
	Rating         RatingConfig   `mapstructure:"rating"`
	DatabaseDSN    string         `mapstructure:"database_dsn"`
	HTTPAddr       string         `mapstructure:"http_addr"`
}

// SandboxAndRunner merges the sandbox resource envelope with the
// matchmaker cadence fields, since both live under the
// submission_runner.* key prefix in the recognised configuration.
type SandboxAndRunner struct {
	SandboxConfig `mapstructure:",squash"`
	RunnerConfig  `mapstructure:",squash"`
}

// Load reads configPath (if non-empty) plus environment overrides
// (prefixed SUBMISSION_RUNNER_, keys upper-cased with "." -> "_") into a
// Runtime, applying the defaults below for anything left unset.
func Load(configPath string) (*Runtime, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("submission_runner")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	var rt Runtime
	if err := v.Unmarshal(&rt); err != nil {
		return nil, fmt.Errorf("unmarshalling configuration: %w", err)
	}
	return &rt, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("profile", false)
	v.SetDefault("max_repo_size_bytes", 50<<20)

	v.SetDefault("submission_runner.image", "aiwarssoc/sandbox")
	v.SetDefault("submission_runner.sandbox_memory_limit", "256M")
	v.SetDefault("submission_runner.sandbox_cpu_count", 1.0)
	v.SetDefault("submission_runner.sandbox_unrun_timeout_seconds", 30)
	v.SetDefault("submission_runner.sandbox_run_timeout_seconds", 60)
	v.SetDefault("submission_runner.matchmakers", 1)
	v.SetDefault("submission_runner.untested_matchmakers", 0)
	v.SetDefault("submission_runner.target_seconds_per_game", 30)

	v.SetDefault("gamemode.id", "chess")
	v.SetDefault("gamemode.options.turn_time", 10)

	v.SetDefault("rating.initial_score", 1000.0)
	v.SetDefault("rating.score_turbulence", 32.0)

	v.SetDefault("database_dsn", "submission_runner.db")
	v.SetDefault("http_addr", ":8080")
}

// memoryUnits maps the suffix letter recognised in a sandbox_memory_limit
// string ("256M", "1G") to its byte multiplier.
var memoryUnits = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
}

func parseMemoryLimit(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty memory limit")
	}
	last := s[len(s)-1]
	mult, hasUnit := memoryUnits[upperByte(last)]
	numPart := s
	if hasUnit {
		numPart = s[:len(s)-1]
	} else {
		mult = 1
	}

	var value int64
	if _, err := fmt.Sscanf(numPart, "%d", &value); err != nil {
		return 0, fmt.Errorf("parsing memory limit %q: %w", s, err)
	}
	return value * mult, nil
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
