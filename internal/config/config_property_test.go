package config

import (
	"fmt"
	"os"
	"strconv"
	"testing"

	"pgregory.net/rapid"
)

// validLogLevels are the accepted log level values.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// numericEnvKeys lists the overrides parsed as integers.
var numericEnvKeys = []string{"SIM_SEED", "SIM_RUNS", "SIM_WORKERS", "SIM_FINAL_TIME"}

// allEnvKeys is every config-related env var key.
var allEnvKeys = append([]string{"CONFIG_FILE", "LOG_LEVEL"}, numericEnvKeys...)

// unsetAllConfigEnv clears all config env vars.
func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

func TestProperty_ValidEnvOverrides(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		// Empty string means "use default" (env var not set).
		logLevel := rapid.OneOf(rapid.Just(""), rapid.SampledFrom(validLogLevels)).Draw(t, "logLevel")
		seed := rapid.OneOf(
			rapid.Just(""),
			rapid.Map(rapid.Uint64(), func(v uint64) string { return strconv.FormatUint(v, 10) }),
		).Draw(t, "seed")
		positive := map[string]string{}
		for _, key := range numericEnvKeys[1:] {
			positive[key] = rapid.OneOf(
				rapid.Just(""),
				rapid.Map(rapid.IntRange(1, 100000), strconv.Itoa),
			).Draw(t, key)
		}

		if logLevel != "" {
			os.Setenv("LOG_LEVEL", logLevel)
		}
		if seed != "" {
			os.Setenv("SIM_SEED", seed)
		}
		for key, v := range positive {
			if v != "" {
				os.Setenv(key, v)
			}
		}

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() returned error for valid inputs: %v", err)
		}

		expectedLogLevel := "info"
		if logLevel != "" {
			expectedLogLevel = logLevel
		}
		if cfg.LogLevel != expectedLogLevel {
			t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, expectedLogLevel)
		}

		expectedSeed := uint64(1)
		if seed != "" {
			expectedSeed, _ = strconv.ParseUint(seed, 10, 64)
		}
		if cfg.Seed != expectedSeed {
			t.Fatalf("Seed = %d, want %d", cfg.Seed, expectedSeed)
		}

		type intField struct {
			envKey string
			got    int64
			defVal int64
		}
		fields := []intField{
			{"SIM_RUNS", int64(cfg.Runs), 1},
			{"SIM_WORKERS", int64(cfg.Workers), 1},
			{"SIM_FINAL_TIME", cfg.FinalTime, 1000},
		}
		for _, f := range fields {
			expected := f.defVal
			if v := positive[f.envKey]; v != "" {
				expected, _ = strconv.ParseInt(v, 10, 64)
			}
			if f.got != expected {
				t.Fatalf("%s = %d, want %d (env=%q)", f.envKey, f.got, expected, positive[f.envKey])
			}
		}
	})
}

func TestProperty_InvalidNumberReturnsError(t *testing.T) {
	for _, key := range numericEnvKeys {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				// Generate strings that are not valid integers.
				invalid := rapid.OneOf(
					rapid.StringMatching(`[a-zA-Z]{1,10}`),
					rapid.Just("12.5"),
					rapid.Just("1.0e2"),
				).Filter(func(s string) bool {
					_, err := fmt.Sscanf(s, "%d", new(int))
					return s != "" && err != nil
				}).Draw(t, "invalid")

				os.Setenv(key, invalid)

				if _, err := Load(""); err == nil {
					t.Fatalf("Load() should return error for invalid %s=%q", key, invalid)
				}
			})
		})
	}
}

func TestProperty_NonPositiveCountsReturnError(t *testing.T) {
	for _, key := range numericEnvKeys[1:] {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				os.Setenv(key, strconv.Itoa(rapid.IntRange(-1000, 0).Draw(t, "value")))

				if _, err := Load(""); err == nil {
					t.Fatalf("Load() should return error for non-positive %s", key)
				}
			})
		})
	}
}

func TestProperty_InvalidLogLevelReturnsError(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		// Generate strings that are not valid log levels.
		invalidLevel := rapid.StringMatching(`[a-z]{1,20}`).Filter(func(s string) bool {
			for _, v := range validLogLevels {
				if s == v {
					return false
				}
			}
			return s != ""
		}).Draw(t, "invalidLevel")

		os.Setenv("LOG_LEVEL", invalidLevel)

		if _, err := Load(""); err == nil {
			t.Fatalf("Load() should return error for invalid LOG_LEVEL %q", invalidLevel)
		}
	})
}
