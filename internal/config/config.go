// Package config parses CLI flags and environment for the tutor.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultVoice       = "Kore"
	defaultAspectRatio = "1:1"
	defaultTimeout     = 90 * time.Second
)

// Voices are the prebuilt voice identities the speech models accept.
var Voices = []string{"Kore", "Puck", "Charon", "Zephyr", "Fenrir"}

// ClassLevels are the supported grade levels, youngest first.
var ClassLevels = []string{"LKG", "UKG", "Class 1", "Class 2", "Class 3", "Class 4", "Class 5"}

// AspectRatios are the supported image aspect ratios.
var AspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

// Config is the resolved runtime configuration.
type Config struct {
	APIKey        string
	ProfileDBPath string

	Voice       string
	ClassLevel  string
	AspectRatio string

	// Timeout bounds one text turn. Media generation runs without it.
	Timeout time.Duration
	Debug   bool
}

// Parse reads flags and environment. A nil getenv falls back to os.Getenv.
func Parse(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Config{}
	fs := flag.NewFlagSet("gemikid", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("GEMIKID_API_KEY")), "Gemini API key (or GEMIKID_API_KEY)")
	fs.StringVar(&cfg.ProfileDBPath, "profile-db", strings.TrimSpace(getenv("GEMIKID_PROFILE_DB")), "path to the profile database")
	fs.StringVar(&cfg.Voice, "voice", defaultVoice, "speech voice identity")
	fs.StringVar(&cfg.ClassLevel, "class", strings.TrimSpace(getenv("GEMIKID_CLASS_LEVEL")), "student class level (for example: UKG, Class 3)")
	fs.StringVar(&cfg.AspectRatio, "aspect-ratio", defaultAspectRatio, "generated image aspect ratio")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-turn timeout (e.g. 90s)")
	fs.BoolVar(&cfg.Debug, "debug", false, "log at debug level")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(getenv("GOOGLE_API_KEY"))
	}
	if cfg.ProfileDBPath == "" {
		cfg.ProfileDBPath = defaultProfileDBPath(getenv)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("an API key is required: set -api-key or GEMIKID_API_KEY")
	}
	if !contains(Voices, cfg.Voice) {
		return fmt.Errorf("unknown voice %q: choose one of %s", cfg.Voice, strings.Join(Voices, ", "))
	}
	if cfg.ClassLevel != "" && !contains(ClassLevels, cfg.ClassLevel) {
		return fmt.Errorf("unknown class level %q: choose one of %s", cfg.ClassLevel, strings.Join(ClassLevels, ", "))
	}
	if !contains(AspectRatios, cfg.AspectRatio) {
		return fmt.Errorf("unknown aspect ratio %q: choose one of %s", cfg.AspectRatio, strings.Join(AspectRatios, ", "))
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func defaultProfileDBPath(getenv func(string) string) string {
	home := strings.TrimSpace(getenv("HOME"))
	if home == "" {
		return "gemikid.db"
	}
	return filepath.Join(home, ".gemikid", "profile.db")
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
