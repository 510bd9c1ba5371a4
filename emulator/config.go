/*
Copyright (C) 2019-2020 Andreas T Jonsson

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package emulator

import (
	"flag"
	"fmt"
	"os"

	"github.com/andreas-jonsson/xtchipset/emulator/chipset"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DMAConfig selects the DMA features of the machine. Unset fields keep
// their defaults.
type DMAConfig struct {
	Primary                *bool  `yaml:"primary"`
	Secondary              *bool  `yaml:"secondary"`
	ExtraPageRegisters     *bool  `yaml:"extra_page_registers"`
	PageRegistersWriteOnly bool   `yaml:"page_registers_write_only"`
	AllowDecrement         *bool  `yaml:"allow_decrement"`
	Wrapping               uint32 `yaml:"wrapping"`
}

type VectorConfig struct {
	Primary   byte `yaml:"primary"`
	Secondary byte `yaml:"secondary"`
}

// Config is the machine file. Zero values mean default.
type Config struct {
	CyclesPerMs int64        `yaml:"cycles_per_ms"`
	EventQueue  int          `yaml:"event_queue"`
	RAMSize     int          `yaml:"ram_size"`
	XT          bool         `yaml:"xt"`
	Vectors     VectorConfig `yaml:"vectors"`
	DMA         DMAConfig    `yaml:"dma"`

	Script string `yaml:"script"`
	Trace  string `yaml:"trace"`
	Log    string `yaml:"log"`

	// Duration is how many milliseconds to run after the script returns.
	Duration int  `yaml:"duration"`
	Realtime bool `yaml:"realtime"`

	// PresentEvery is the number of milliseconds between platform updates.
	PresentEvery int `yaml:"present_every"`
}

const defaultPresentEvery = 20

func LoadConfig(fs afero.Fs, name string) (Config, error) {
	var cfg Config
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Chipset converts the machine file to a chipset configuration.
func (cfg Config) Chipset() chipset.Config {
	c := chipset.DefaultConfig()
	if cfg.CyclesPerMs > 0 {
		c.CycleMax = cfg.CyclesPerMs
	}
	if cfg.EventQueue > 0 {
		c.QueueSize = cfg.EventQueue
	}
	if cfg.RAMSize > 0 {
		c.RAMSize = cfg.RAMSize
	}
	c.XT = cfg.XT
	if cfg.Vectors.Primary != 0 {
		c.VectorBase[0] = cfg.Vectors.Primary
	}
	if cfg.Vectors.Secondary != 0 {
		c.VectorBase[1] = cfg.Vectors.Secondary
	}

	d := cfg.DMA
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.DMA.Primary, d.Primary)
	set(&c.DMA.Secondary, d.Secondary)
	set(&c.DMA.ExtraPageRegisters, d.ExtraPageRegisters)
	set(&c.DMA.AllowDecrement, d.AllowDecrement)
	c.DMA.PageRegistersWriteOnly = d.PageRegistersWriteOnly
	c.DMAWrapping = d.Wrapping
	return c
}

var (
	configFile, scriptFile string
	traceFile, logFile     string
	duration, presentEvery int
	xtMode, realtime       bool
)

func init() {
	if p, ok := os.LookupEnv("XTCHIPSET_CONFIG"); ok {
		configFile = p
	}
	if p, ok := os.LookupEnv("XTCHIPSET_SCRIPT"); ok {
		scriptFile = p
	}

	flag.StringVar(&configFile, "config", configFile, "Path to machine configuration")
	flag.StringVar(&scriptFile, "script", scriptFile, "Path to Lua guest script")
	flag.StringVar(&traceFile, "trace", "", "Write an event trace to file (.gz to compress)")
	flag.StringVar(&logFile, "log", "", "Copy log output to file")
	flag.IntVar(&duration, "t", 0, "Milliseconds to run after the script returns")
	flag.IntVar(&presentEvery, "present", defaultPresentEvery, "Milliseconds between monitor updates")
	flag.BoolVar(&xtMode, "xt", false, "Emulate an XT without secondary interrupt controller")
	flag.BoolVar(&realtime, "realtime", false, "Pace emulated time to wall time")
}

// applyFlags overrides cfg with flags given on the command line. Flags that
// were not given only fill in what the machine file left empty.
func applyFlags(fl *flag.FlagSet, cfg *Config) {
	given := make(map[string]bool)
	fl.Visit(func(f *flag.Flag) { given[f.Name] = true })

	str := func(name string, dst *string, v string) {
		if given[name] || *dst == "" {
			*dst = v
		}
	}
	str("script", &cfg.Script, scriptFile)
	str("trace", &cfg.Trace, traceFile)
	str("log", &cfg.Log, logFile)

	if given["t"] || cfg.Duration == 0 {
		cfg.Duration = duration
	}
	if given["present"] || cfg.PresentEvery == 0 {
		cfg.PresentEvery = presentEvery
	}
	if given["xt"] {
		cfg.XT = xtMode
	}
	if given["realtime"] {
		cfg.Realtime = realtime
	}
}

// loadConfig reads the machine file named by -config, if any, and applies
// the command line on top of it.
func loadConfig(fs afero.Fs, fl *flag.FlagSet) (Config, error) {
	var cfg Config
	if configFile != "" {
		var err error
		if cfg, err = LoadConfig(fs, configFile); err != nil {
			return cfg, err
		}
	}
	applyFlags(fl, &cfg)
	return cfg, nil
}
