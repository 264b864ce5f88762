package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/kratos"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "authflow.yaml"

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type logConfig struct {
	Level string `yaml:"level"`
}

// fileConfig is the on-disk layout of authflow.yaml.
type fileConfig struct {
	Client authflow.Config `yaml:"client"`
	Kratos kratos.Config   `yaml:"kratos"`
	Redis  redisConfig     `yaml:"redis"`
	Log    logConfig       `yaml:"log"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Client: authflow.DefaultConfig(),
		Kratos: kratos.DefaultConfig(),
		Log:    logConfig{Level: "info"},
	}
}

// loadConfig reads envPath (if present), then the YAML file, then applies
// AUTHFLOW_* environment overrides. A missing default config file is not an
// error; a missing explicit one is.
func loadConfig(path, envPath string) (*fileConfig, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	out := defaultFileConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := applyEnv(out); err != nil {
		return nil, err
	}
	if err := out.Client.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func applyEnv(c *fileConfig) error {
	if v := os.Getenv("AUTHFLOW_KRATOS_URL"); v != "" {
		c.Kratos.PublicURL = v
	}
	if v := os.Getenv("AUTHFLOW_TOKENIZE_TEMPLATE"); v != "" {
		c.Kratos.TokenizeTemplate = v
	}
	if v := os.Getenv("AUTHFLOW_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("AUTHFLOW_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AUTHFLOW_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTHFLOW_REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	if v := os.Getenv("AUTHFLOW_SESSION_FILE"); v != "" {
		c.Client.Storage.FilePath = v
	}
	if v := os.Getenv("AUTHFLOW_PHONE_PREFIX"); v != "" {
		c.Client.Reset.PhonePrefix = v
	}
	if v := os.Getenv("AUTHFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}
