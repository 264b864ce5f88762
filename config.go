package authflow

import (
	"errors"
	"strings"
	"time"
)

// Config is the full client configuration tree.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Reset   ResetConfig   `yaml:"reset"`
	Storage StorageConfig `yaml:"storage"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SessionConfig controls session mirroring.
type SessionConfig struct {
	UserTokenKey   string        `yaml:"user_token_key"`
	UserInfoKey    string        `yaml:"user_info_key"`
	TokenTimeout   time.Duration `yaml:"token_timeout"`
	RestoreOnStart bool          `yaml:"restore_on_start"`
}

// ResetConfig controls the credential reset flow.
type ResetConfig struct {
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ChallengeAnchor string        `yaml:"challenge_anchor"`
	// PhonePrefix is prepended to the 10-digit number before dispatch,
	// e.g. "+1". Empty sends the digits as entered.
	PhonePrefix          string        `yaml:"phone_prefix"`
	EnableTargetThrottle bool          `yaml:"enable_target_throttle"`
	MaxRequests          int           `yaml:"max_requests"`
	Cooldown             time.Duration `yaml:"cooldown"`
}

// StorageConfig names where the persisted session lives.
type StorageConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
	FilePath    string `yaml:"file_path"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			UserTokenKey: "userToken",
			UserInfoKey:  "userInfo",
			TokenTimeout: 10 * time.Second,
		},
		Reset: ResetConfig{
			RequestTimeout:  10 * time.Second,
			ChallengeAnchor: "recaptcha-container",
			MaxRequests:     3,
			Cooldown:        15 * time.Minute,
		},
		Storage: StorageConfig{
			RedisPrefix: "authflow",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if strings.TrimSpace(c.Session.UserTokenKey) == "" {
		return errors.New("Session UserTokenKey must be set")
	}
	if strings.TrimSpace(c.Session.UserInfoKey) == "" {
		return errors.New("Session UserInfoKey must be set")
	}
	if c.Session.UserTokenKey == c.Session.UserInfoKey {
		return errors.New("Session UserTokenKey and UserInfoKey must differ")
	}
	if c.Session.TokenTimeout <= 0 {
		return errors.New("Session TokenTimeout must be > 0")
	}

	// Reset
	if c.Reset.RequestTimeout <= 0 {
		return errors.New("Reset RequestTimeout must be > 0")
	}
	if strings.TrimSpace(c.Reset.ChallengeAnchor) == "" {
		return errors.New("Reset ChallengeAnchor must be set")
	}
	if c.Reset.PhonePrefix != "" && !strings.HasPrefix(c.Reset.PhonePrefix, "+") {
		return errors.New("Reset PhonePrefix must start with '+'")
	}
	if c.Reset.EnableTargetThrottle {
		if c.Reset.MaxRequests <= 0 {
			return errors.New("Reset MaxRequests must be > 0 when EnableTargetThrottle is true")
		}
		if c.Reset.Cooldown <= 0 {
			return errors.New("Reset Cooldown must be > 0 when EnableTargetThrottle is true")
		}
	}

	// Storage
	if strings.ContainsAny(c.Storage.RedisPrefix, " \t\n") {
		return errors.New("Storage RedisPrefix must not contain whitespace")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
