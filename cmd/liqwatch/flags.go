package main

import (
	"LiqWatch/internal/config"
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

const (
	ConfigKey   = "config"
	CurveKey    = "curve"
	SimpleKey   = "simple"
	JSONKey     = "json"
	TimeoutKey  = "timeout"
	ServerKey   = "server"
	LabelKey    = "label"
	AtRiskKey   = "at-risk"
	SortKey     = "sort"
	LimitKey    = "limit"
	DefaultGRPC = "127.0.0.1:9090"
)

// loadConfig reads the environment and applies path when given, otherwise
// LIQ_CONFIG_FILE.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	cfg := config.DefaultConfig()
	if err := cfg.ApplyFile(path); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "YAML config file (overrides LIQ_CONFIG_FILE)")
}

type checkFlags struct {
	ConfigPath string
	Curve      bool
	Simple     bool
	JSON       bool
	Timeout    time.Duration
}

func addCheckFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "YAML config file (overrides LIQ_CONFIG_FILE)")
	flags.Bool(CurveKey, false, "Also print the risk curve")
	flags.Bool(SimpleKey, false, "Use account aggregates only, skipping per-reserve reads")
	flags.Bool(JSONKey, false, "Print the snapshot as JSON")
	flags.Duration(TimeoutKey, time.Minute, "Deadline for the chain reads")
}

func parseCheckFlags(flags *pflag.FlagSet) (*checkFlags, error) {
	var (
		f   checkFlags
		err error
	)
	if f.ConfigPath, err = flags.GetString(ConfigKey); err != nil {
		return nil, err
	}
	if f.Curve, err = flags.GetBool(CurveKey); err != nil {
		return nil, err
	}
	if f.Simple, err = flags.GetBool(SimpleKey); err != nil {
		return nil, err
	}
	if f.JSON, err = flags.GetBool(JSONKey); err != nil {
		return nil, err
	}
	if f.Timeout, err = flags.GetDuration(TimeoutKey); err != nil {
		return nil, err
	}
	return &f, nil
}

type clientFlags struct {
	Server  string
	Timeout time.Duration
}

func addClientFlags(flags *pflag.FlagSet) {
	flags.String(ServerKey, DefaultGRPC, "gRPC address of a running liqwatch serve")
	flags.Duration(TimeoutKey, 10*time.Second, "Per-request deadline")
}

func parseClientFlags(flags *pflag.FlagSet) (*clientFlags, error) {
	server, err := flags.GetString(ServerKey)
	if err != nil {
		return nil, err
	}
	timeout, err := flags.GetDuration(TimeoutKey)
	if err != nil {
		return nil, err
	}
	return &clientFlags{Server: server, Timeout: timeout}, nil
}
