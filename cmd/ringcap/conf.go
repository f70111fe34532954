//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fako1024/ringcap/capture/afpacket/afring"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	defaultSnapLen  = (1 << 16) // 64 kiB
	defaultLogLevel = "info"
)

// Config denotes the full configuration of a capture run. All values can be
// provided via a YAML file, explicitly set flags take precedence
type Config struct {
	Iface       string        `yaml:"iface"`
	RingSize    int           `yaml:"ring-size"`
	SnapLen     int           `yaml:"snap-len"`
	Jumbo       bool          `yaml:"jumbo"`
	TPacketV2   bool          `yaml:"tpacket-v2"`
	Promiscuous bool          `yaml:"promiscuous"`
	Verbose     bool          `yaml:"verbose"`
	Duration    time.Duration `yaml:"duration"`
	LogLevel    string        `yaml:"log-level"`
}

func defaultConfig() *Config {
	return &Config{
		RingSize: afring.DefaultRingSize,
		SnapLen:  defaultSnapLen,
		LogLevel: defaultLogLevel,
	}
}

func (c *Config) loadFile(path string) error {

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	return nil
}

// mergeUnchangedFlags copies all values from fileCfg for which no explicit
// flag was provided on the command line
func mergeUnchangedFlags(cmd *cobra.Command, cfg, fileCfg *Config) {

	flags := cmd.Flags()
	if !flags.Changed("iface") {
		cfg.Iface = fileCfg.Iface
	}
	if !flags.Changed("ring-size") {
		cfg.RingSize = fileCfg.RingSize
	}
	if !flags.Changed("snap-len") {
		cfg.SnapLen = fileCfg.SnapLen
	}
	if !flags.Changed("jumbo") {
		cfg.Jumbo = fileCfg.Jumbo
	}
	if !flags.Changed("tpacket-v2") {
		cfg.TPacketV2 = fileCfg.TPacketV2
	}
	if !flags.Changed("promiscuous") {
		cfg.Promiscuous = fileCfg.Promiscuous
	}
	if !flags.Changed("verbose") {
		cfg.Verbose = fileCfg.Verbose
	}
	if !flags.Changed("duration") {
		cfg.Duration = fileCfg.Duration
	}
	if !flags.Changed("log-level") {
		cfg.LogLevel = fileCfg.LogLevel
	}
}
