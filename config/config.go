// File: config/config.go
// Package config loads the static configuration a cycle is built from
// (spec.md §4.8, SPEC_FULL.md §4.12). Grounded on the pack's viper +
// go-toml/v2 combination: viper supplies env-var overlay and the
// -c/-g config-path and config-override CLI semantics (spec.md §6),
// go-toml/v2 is registered as its TOML codec since the teacher's own
// config surface is flag-driven and has no existing file format to
// imitate.
//
// Author: reactorcore contributors
// License: Apache-2.0
package config

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/nginxgo/reactorcore/listener"
	"github.com/nginxgo/reactorcore/shm"
)

// StaticConfig is the immutable, fully-resolved configuration a Cycle is
// built from (spec.md §4.8 "Cycle"). Each reload produces a new
// StaticConfig and diffs it against the running one.
type StaticConfig struct {
	WorkerProcesses    int
	WorkerConnections  int
	ArenaSize          int
	AcceptMutex        bool
	AcceptMutexDelayMS int64

	// WorkerShutdownTimeoutMS bounds how long a graceful reload or stop
	// waits for a worker to drain in-flight connections before it is
	// force-terminated (spec.md §4.8 step 5, §4.9 "quit").
	WorkerShutdownTimeoutMS int64

	Listen      []listener.Options
	SharedZones []shm.Declaration
	Modules     []string

	LogLevel string
	PIDFile  string
}

func defaults() *StaticConfig {
	return &StaticConfig{
		WorkerProcesses:         1,
		WorkerConnections:       512,
		ArenaSize:               4096,
		AcceptMutex:             true,
		AcceptMutexDelayMS:      500,
		WorkerShutdownTimeoutMS: 5000,
		LogLevel:                "info",
		PIDFile:                 "/run/reactorcore.pid",
	}
}

// Load reads configPath (TOML) overlaid with REACTORCORE_-prefixed
// environment variables and the -g inline directive string, producing a
// StaticConfig. An empty configPath loads defaults plus overrides only,
// matching nginx's "run with compiled-in defaults" behaviour.
func Load(configPath string, inlineDirectives string) (*StaticConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("REACTORCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	d := defaults()
	v.SetDefault("worker_processes", d.WorkerProcesses)
	v.SetDefault("worker_connections", d.WorkerConnections)
	v.SetDefault("arena_size", d.ArenaSize)
	v.SetDefault("accept_mutex", d.AcceptMutex)
	v.SetDefault("accept_mutex_delay_ms", d.AcceptMutexDelayMS)
	v.SetDefault("worker_shutdown_timeout_ms", d.WorkerShutdownTimeoutMS)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("pid_file", d.PIDFile)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	if inlineDirectives != "" {
		overlay := map[string]any{}
		if err := toml.Unmarshal([]byte(inlineDirectives), &overlay); err != nil {
			return nil, fmt.Errorf("config: parsing -g directives: %w", err)
		}
		for k, val := range overlay {
			v.Set(k, val)
		}
	}

	cfg := &StaticConfig{
		WorkerProcesses:    v.GetInt("worker_processes"),
		WorkerConnections:  v.GetInt("worker_connections"),
		ArenaSize:          v.GetInt("arena_size"),
		AcceptMutex:             v.GetBool("accept_mutex"),
		AcceptMutexDelayMS:      v.GetInt64("accept_mutex_delay_ms"),
		WorkerShutdownTimeoutMS: v.GetInt64("worker_shutdown_timeout_ms"),
		LogLevel:                v.GetString("log_level"),
		PIDFile:            v.GetString("pid_file"),
		Modules:            v.GetStringSlice("modules"),
	}

	var listenEntries []map[string]any
	if err := v.UnmarshalKey("listen", &listenEntries); err != nil {
		return nil, fmt.Errorf("config: parsing listen entries: %w", err)
	}
	for _, e := range listenEntries {
		cfg.Listen = append(cfg.Listen, listener.Options{
			Address:     stringField(e, "address"),
			Backlog:     intField(e, "backlog"),
			ReusePort:   boolField(e, "reuseport"),
			ReuseAddr:   boolFieldDefault(e, "reuseaddr", true),
			IPv6Only:    boolField(e, "ipv6only"),
			DeferAccept: boolField(e, "defer_accept"),
		})
	}

	var zoneEntries []map[string]any
	if err := v.UnmarshalKey("shared_zones", &zoneEntries); err != nil {
		return nil, fmt.Errorf("config: parsing shared_zones entries: %w", err)
	}
	for _, e := range zoneEntries {
		cfg.SharedZones = append(cfg.SharedZones, shm.Declaration{
			Name:    stringField(e, "name"),
			Size:    intField(e, "size"),
			Tag:     stringField(e, "tag"),
			NoReuse: boolField(e, "no_reuse"),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants a Cycle relies on to build cleanly.
func (c *StaticConfig) Validate() error {
	if c.WorkerProcesses < 1 {
		return fmt.Errorf("config: worker_processes must be >= 1")
	}
	if c.WorkerConnections < 2 {
		return fmt.Errorf("config: worker_connections must be >= 2 (one slot is reserved for the IPC channel)")
	}
	if c.ArenaSize < 64 {
		return fmt.Errorf("config: arena_size must be >= 64")
	}
	seen := make(map[string]bool, len(c.Listen))
	for _, l := range c.Listen {
		if seen[l.Address] {
			return fmt.Errorf("config: duplicate listen address %q", l.Address)
		}
		seen[l.Address] = true
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func boolFieldDefault(m map[string]any, key string, def bool) bool {
	v, ok := m[key].(bool)
	if !ok {
		return def
	}
	return v
}
