// Package config provides Viper-based configuration loading for the room SDK
// and the roomctl command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport kinds accepted in TransportConfig.Kind.
const (
	TransportWebsocket = "websocket"
	TransportGRPC      = "grpc"
	TransportLoopback  = "loopback"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ServiceConfig identifies the application to the remote play service.
type ServiceConfig struct {
	// AppID is the application id the matchmaking client is bound to.
	AppID string `mapstructure:"app_id"`
}

// TransportConfig selects and configures the network transport.
type TransportConfig struct {
	// Kind is one of "websocket", "grpc" or "loopback".
	Kind string `mapstructure:"kind"`
	// URL is the websocket endpoint, e.g. "ws://127.0.0.1:7350/ws".
	URL string `mapstructure:"url"`
	// GRPCHost is the gRPC gateway host.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the gRPC gateway port.
	GRPCPort int `mapstructure:"grpc_port"`
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// GRPCAddr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TransportConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", t.GRPCHost, t.GRPCPort)
}

// TimeoutConfig bounds each remote step of the room lifecycle. Timeouts stop
// the local wait only; the remote operation may still complete.
type TimeoutConfig struct {
	BaseInit    time.Duration `mapstructure:"base_init"`
	Matchmaking time.Duration `mapstructure:"matchmaking"`
	SetActor    time.Duration `mapstructure:"set_actor"`
	ListRooms   time.Duration `mapstructure:"list_rooms"`
	JoinAttempt time.Duration `mapstructure:"join_attempt"`
	CreateRoom  time.Duration `mapstructure:"create_room"`
	Realtime    time.Duration `mapstructure:"realtime"`
	Leave       time.Duration `mapstructure:"leave"`
}

// DefaultTimeouts returns the reference timeout policy.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		BaseInit:    10 * time.Second,
		Matchmaking: 30 * time.Second,
		SetActor:    10 * time.Second,
		ListRooms:   10 * time.Second,
		JoinAttempt: 5 * time.Second,
		CreateRoom:  10 * time.Second,
		Realtime:    15 * time.Second,
		Leave:       10 * time.Second,
	}
}

// WithDefaults returns t with every zero field taken from DefaultTimeouts.
func (t TimeoutConfig) WithDefaults() TimeoutConfig {
	d := DefaultTimeouts()
	fill := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&t.BaseInit, d.BaseInit)
	fill(&t.Matchmaking, d.Matchmaking)
	fill(&t.SetActor, d.SetActor)
	fill(&t.ListRooms, d.ListRooms)
	fill(&t.JoinAttempt, d.JoinAttempt)
	fill(&t.CreateRoom, d.CreateRoom)
	fill(&t.Realtime, d.Realtime)
	fill(&t.Leave, d.Leave)
	return t
}

// ScoringConfig configures the optional scripted room score bonus.
type ScoringConfig struct {
	// ScriptPath is a Lua file defining score_bonus(room); empty disables it.
	ScriptPath string `mapstructure:"script_path"`
	// InstructionLimit caps Lua opcodes per call; 0 uses the scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Service   ServiceConfig   `mapstructure:"service"`
	Transport TransportConfig `mapstructure:"transport"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Service.AppID == "" {
		errs = append(errs, "service.app_id must not be empty")
	}
	if err := validateTransport(c.Transport); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTimeouts(c.Timeouts); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scoring.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scoring.instruction_limit must be >= 0, got %d", c.Scoring.InstructionLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	var errs []string
	switch t.Kind {
	case TransportWebsocket:
		u, err := url.Parse(t.URL)
		if t.URL == "" || err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Sprintf("transport.url must be a ws:// or wss:// URL, got %q", t.URL))
		}
	case TransportGRPC:
		if t.GRPCHost == "" {
			errs = append(errs, "transport.grpc_host must not be empty")
		}
		if t.GRPCPort < 1 || t.GRPCPort > 65535 {
			errs = append(errs, fmt.Sprintf("transport.grpc_port must be 1-65535, got %d", t.GRPCPort))
		}
	case TransportLoopback:
	default:
		errs = append(errs, fmt.Sprintf("transport.kind must be one of [websocket, grpc, loopback], got %q", t.Kind))
	}
	if t.DialTimeout < 0 {
		errs = append(errs, "transport.dial_timeout must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateTimeouts(t TimeoutConfig) error {
	var errs []string
	check := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("timeouts.%s must be > 0, got %s", name, d))
		}
	}
	check("base_init", t.BaseInit)
	check("matchmaking", t.Matchmaking)
	check("set_actor", t.SetActor)
	check("list_rooms", t.ListRooms)
	check("join_attempt", t.JoinAttempt)
	check("create_room", t.CreateRoom)
	check("realtime", t.Realtime)
	check("leave", t.Leave)
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file and uses
// defaults plus environment.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with ROOMLINK_ prefix
	v.SetEnvPrefix("ROOMLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by Load with no file and no
// environment overrides.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("service.app_id", "roomlink-dev")

	v.SetDefault("transport.kind", TransportLoopback)
	v.SetDefault("transport.url", "ws://127.0.0.1:7350/ws")
	v.SetDefault("transport.grpc_host", "127.0.0.1")
	v.SetDefault("transport.grpc_port", 7349)
	v.SetDefault("transport.dial_timeout", "5s")

	d := DefaultTimeouts()
	v.SetDefault("timeouts.base_init", d.BaseInit)
	v.SetDefault("timeouts.matchmaking", d.Matchmaking)
	v.SetDefault("timeouts.set_actor", d.SetActor)
	v.SetDefault("timeouts.list_rooms", d.ListRooms)
	v.SetDefault("timeouts.join_attempt", d.JoinAttempt)
	v.SetDefault("timeouts.create_room", d.CreateRoom)
	v.SetDefault("timeouts.realtime", d.Realtime)
	v.SetDefault("timeouts.leave", d.Leave)

	v.SetDefault("scoring.script_path", "")
	v.SetDefault("scoring.instruction_limit", 0)

	v.SetDefault("metrics.enabled", false)
}
