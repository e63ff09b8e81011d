// Package config loads a cTCP daemon's on-disk configuration file: a
// permissive YAML document, missing-file-is-default, with a
// refuse-on-oversized-file guard against a misbehaving or hostile config
// directory.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soypat/ctcp"
)

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// maxFileSize bounds how large a config file this loader will read.
const maxFileSize = 1 << 20

// File is the on-disk shape of a cTCP daemon's configuration. Durations
// are expressed in milliseconds in YAML since cTCP's clock
// (github.com/soypat/ctcp.Clock) is itself millisecond-granular.
type File struct {
	RecvWindow     uint32 `yaml:"recv_window"`
	SendWindow     uint32 `yaml:"send_window"`
	TickPeriodMS   int64  `yaml:"tick_period_ms"`
	RTTimeoutMS    int64  `yaml:"rt_timeout_ms"`
	MaxSegData     int    `yaml:"max_seg_data"`
	MaxNumXmits    int    `yaml:"max_num_xmits"`
	MSLMS          int64  `yaml:"msl_ms"`
	ListenAddr     string `yaml:"listen_addr"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LogLevel       string `yaml:"log_level"`
}

// Load reads and parses path, returning ctcp.DefaultConfig() augmented by
// whatever fields the file sets. A missing file is not an error: it
// yields the ambient defaults.
func Load(path string) (File, ctcp.Config, error) {
	def := ctcp.DefaultConfig()
	f := File{
		RecvWindow:   uint32(def.RecvWindow),
		SendWindow:   uint32(def.SendWindow),
		TickPeriodMS: def.TickPeriod.Milliseconds(),
		RTTimeoutMS:  def.RTTimeout.Milliseconds(),
		MaxSegData:   def.MaxSegData,
		MaxNumXmits:  def.MaxNumXmits,
		MSLMS:        def.MSL.Milliseconds(),
		ListenAddr:   ":9494",
		MetricsAddr:  ":9495",
		LogLevel:     "info",
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, f.toEngineConfig(), nil
		}
		return f, ctcp.Config{}, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return f, ctcp.Config{}, fmt.Errorf("config: %s exceeds %d bytes", path, maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, ctcp.Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, ctcp.Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, f.toEngineConfig(), nil
}

func (f File) toEngineConfig() ctcp.Config {
	cfg := ctcp.DefaultConfig()
	if f.RecvWindow != 0 {
		cfg.RecvWindow = ctcp.Size(f.RecvWindow)
	}
	if f.SendWindow != 0 {
		cfg.SendWindow = ctcp.Size(f.SendWindow)
	}
	if f.TickPeriodMS != 0 {
		cfg.TickPeriod = msDuration(f.TickPeriodMS)
	}
	if f.RTTimeoutMS != 0 {
		cfg.RTTimeout = msDuration(f.RTTimeoutMS)
	}
	if f.MaxSegData != 0 {
		cfg.MaxSegData = f.MaxSegData
	}
	if f.MaxNumXmits != 0 {
		cfg.MaxNumXmits = f.MaxNumXmits
	}
	if f.MSLMS != 0 {
		cfg.MSL = msDuration(f.MSLMS)
	}
	return cfg
}
