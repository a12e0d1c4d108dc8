// Package config loads service and CLI settings from an optional YAML file
// and the environment. Environment values win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vrptabu/internal/opt"
)

type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	SQLitePath  string `yaml:"sqlitePath"`
	RedisURL    string `yaml:"redisUrl"`

	LogLevel       string `yaml:"logLevel"`
	LogDevelopment bool   `yaml:"logDevelopment"`

	// RateRPS limits API requests per second; 0 disables limiting.
	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`

	// Seeds is how many greedy seeds a solve starts from when the caller
	// supplies none.
	Seeds    int   `yaml:"seeds"`
	SeedRand int64 `yaml:"seedRand"`

	Tabu opt.Config `yaml:"tabu"`
}

func Default() Config {
	return Config{
		Port:      8080,
		LogLevel:  "info",
		RateBurst: 20,
		Seeds:     4,
		Tabu:      opt.DefaultConfig(),
	}
}

// Load reads path (if non-empty) over the defaults, then applies the process
// environment.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an injectable environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(lookup); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	num("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SQLITE_PATH", &c.SQLitePath)
	str("REDIS_URL", &c.RedisURL)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup("LOG_DEVELOPMENT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_DEVELOPMENT: %w", err))
		}
		c.LogDevelopment = b
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_RPS: %w", err))
		}
		c.RateRPS = f
	}
	num("RATE_BURST", &c.RateBurst)
	num("SOLVE_SEEDS", &c.Seeds)

	num("TABU_TENURE", &c.Tabu.Tenure)
	num("TABU_MAX_ITERATIONS", &c.Tabu.MaxIterations)
	num("TABU_STAGNATION", &c.Tabu.StagnationLimit)
	num("TABU_WORKERS", &c.Tabu.Workers)
	if v, ok := lookup("TABU_TIME_BUDGET"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TABU_TIME_BUDGET: %w", err))
		}
		c.Tabu.TimeBudget = d
	}
	if v, ok := lookup("TABU_FAMILIES"); ok && v != "" {
		fams, err := ParseFamilies(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TABU_FAMILIES: %w", err))
		}
		c.Tabu.Families = fams
	}
	return errors.Join(errs...)
}

// ParseFamilies reads a comma separated list of move family names.
func ParseFamilies(s string) ([]opt.Family, error) {
	var out []opt.Family
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := opt.ParseFamily(part)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.RateRPS < 0 {
		return fmt.Errorf("rateRps must be >= 0")
	}
	if c.RateRPS > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rateBurst must be > 0 when rateRps is set")
	}
	if c.Seeds < 0 {
		return fmt.Errorf("seeds must be >= 0")
	}
	if err := c.Tabu.Validate(); err != nil {
		return fmt.Errorf("tabu: %w", err)
	}
	return nil
}

// Search returns the engine configuration.
func (c Config) Search() opt.Config {
	return c.Tabu
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
