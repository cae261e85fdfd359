// Package config gathers server settings from the environment, an optional
// .env file and command line flags, in that order of increasing priority.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/rules"
)

// Config holds the server configuration.
type Config struct {
	HTTPPort  string
	HTTPSPort string
	CertFile  string
	KeyFile   string
	TLSOnly   bool

	RulesFile   string
	MapFile     string
	PowerPolicy game.PowerPolicy
	MaxRounds   int
	Timeouts    game.Timeouts

	TokenTTL time.Duration
	// RateLimit caps inbound websocket messages per second per seat.
	RateLimit float64
	RateBurst int

	rules   *rules.Rules
	mapData []byte
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HTTPPort:    "8080",
		HTTPSPort:   "8443",
		PowerPolicy: game.PowerVerify,
		MaxRounds:   200,
		Timeouts:    game.DefaultTimeouts(),
		TokenTTL:    24 * time.Hour,
		RateLimit:   20,
		RateBurst:   40,
	}
}

// Load reads .env if it exists, then the POWERGRID_* environment, then
// args. Rule and map files are read and checked before returning.
func Load(args []string) (*Config, error) {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	c := Default()
	if err := c.FromEnv(os.Getenv); err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := c.Prepare(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromEnv overrides fields from variables returned by getenv.
func (c *Config) FromEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key, v string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s=%q: %w", key, v, err)
		}
	}
	dur := func(key string, dst *time.Duration) {
		v := getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			fail(key, v, err)
			return
		}
		*dst = d
	}
	num := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(key, v, err)
			return
		}
		*dst = n
	}

	str("POWERGRID_HTTP_PORT", &c.HTTPPort)
	str("POWERGRID_HTTPS_PORT", &c.HTTPSPort)
	str("POWERGRID_CERT", &c.CertFile)
	str("POWERGRID_KEY", &c.KeyFile)
	if v := getenv("POWERGRID_TLS_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail("POWERGRID_TLS_ONLY", v, err)
		}
		c.TLSOnly = b
	}
	str("POWERGRID_RULES", &c.RulesFile)
	str("POWERGRID_MAP", &c.MapFile)
	if v := getenv("POWERGRID_POWER_POLICY"); v != "" {
		c.PowerPolicy = game.PowerPolicy(v)
	}
	num("POWERGRID_MAX_ROUNDS", &c.MaxRounds)
	dur("POWERGRID_TIMEOUT_CHOICE", &c.Timeouts.Choice)
	dur("POWERGRID_TIMEOUT_BID", &c.Timeouts.Bid)
	dur("POWERGRID_TIMEOUT_DISCARD", &c.Timeouts.Discard)
	dur("POWERGRID_TIMEOUT_RESOURCES", &c.Timeouts.Resources)
	dur("POWERGRID_TIMEOUT_BUILD", &c.Timeouts.Build)
	dur("POWERGRID_TIMEOUT_POWER", &c.Timeouts.Power)
	dur("POWERGRID_TIMEOUT_NOTIFY", &c.Timeouts.Notify)
	dur("POWERGRID_TOKEN_TTL", &c.TokenTTL)
	if v := getenv("POWERGRID_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail("POWERGRID_RATE_LIMIT", v, err)
		}
		c.RateLimit = f
	}
	num("POWERGRID_RATE_BURST", &c.RateBurst)
	return firstErr
}

// RegisterFlags binds flags to the current values, so flags win over env.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.HTTPPort, "http-port", c.HTTPPort, "HTTP port")
	fs.StringVar(&c.HTTPSPort, "https-port", c.HTTPSPort, "HTTPS port")
	fs.StringVar(&c.CertFile, "cert", c.CertFile, "Path to certificate file")
	fs.StringVar(&c.KeyFile, "key", c.KeyFile, "Path to private key file")
	fs.BoolVar(&c.TLSOnly, "tls-only", c.TLSOnly, "Only serve HTTPS")
	fs.StringVar(&c.RulesFile, "rules", c.RulesFile, "YAML rule tables (default: built-in)")
	fs.StringVar(&c.MapFile, "map", c.MapFile, "YAML map (default: built-in USA)")
	fs.Func("power-policy", "verify or trust (default verify)", func(s string) error {
		c.PowerPolicy = game.PowerPolicy(s)
		return nil
	})
	fs.IntVar(&c.MaxRounds, "max-rounds", c.MaxRounds, "End a game after this many rounds (0: no limit)")
	fs.DurationVar(&c.Timeouts.Choice, "choice-timeout", c.Timeouts.Choice, "Auction choice timeout")
	fs.DurationVar(&c.Timeouts.Bid, "bid-timeout", c.Timeouts.Bid, "Bid timeout")
	fs.DurationVar(&c.Timeouts.Discard, "discard-timeout", c.Timeouts.Discard, "Discard timeout")
	fs.DurationVar(&c.Timeouts.Resources, "resources-timeout", c.Timeouts.Resources, "Resource purchase timeout")
	fs.DurationVar(&c.Timeouts.Build, "build-timeout", c.Timeouts.Build, "Build timeout")
	fs.DurationVar(&c.Timeouts.Power, "power-timeout", c.Timeouts.Power, "Bureaucracy report timeout")
	fs.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "Lifetime of issued tokens")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "Inbound messages per second per seat (0: unlimited)")
	fs.IntVar(&c.RateBurst, "rate-burst", c.RateBurst, "Inbound message burst per seat")
}

// Prepare checks settings and reads the rule and map files.
func (c *Config) Prepare() error {
	switch c.PowerPolicy {
	case "":
		c.PowerPolicy = game.PowerVerify
	case game.PowerVerify, game.PowerTrust:
	default:
		return fmt.Errorf("unknown power policy %q", c.PowerPolicy)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max rounds must not be negative")
	}
	c.rules = rules.Default()
	if c.RulesFile != "" {
		r, err := rules.Load(c.RulesFile)
		if err != nil {
			return fmt.Errorf("rules %s: %w", c.RulesFile, err)
		}
		c.rules = r
	}
	if c.MapFile != "" {
		data, err := os.ReadFile(c.MapFile)
		if err != nil {
			return fmt.Errorf("map %s: %w", c.MapFile, err)
		}
		if _, err := board.Parse(data); err != nil {
			return fmt.Errorf("map %s: %w", c.MapFile, err)
		}
		c.mapData = data
	}
	return nil
}

// Rules returns the tables read by Prepare, or the built-in ones before
// Prepare has run.
func (c *Config) Rules() *rules.Rules {
	if c.rules == nil {
		return rules.Default()
	}
	return c.rules
}

// NewMap returns a fresh board for one game.
func (c *Config) NewMap() (*board.Map, error) {
	if c.mapData == nil {
		return board.USA(), nil
	}
	return board.Load(bytes.NewReader(c.mapData))
}

// GameOptions builds the options shared by every game the server starts.
func (c *Config) GameOptions() (game.Options, error) {
	m, err := c.NewMap()
	if err != nil {
		return game.Options{}, err
	}
	return game.Options{
		Rules:       c.Rules(),
		Map:         m,
		Timeouts:    c.Timeouts,
		PowerPolicy: c.PowerPolicy,
		MaxRounds:   c.MaxRounds,
	}, nil
}
