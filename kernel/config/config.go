// Package config describes the layout of the simulated machine and the
// limits the kernel boots with.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sv39os/kernel/mm"
	"sv39os/kernel/task"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the boot configuration of the kernel. All addresses are
// physical.
type Config struct {
	// MemoryBase and MemoryEnd delimit the simulated RAM.
	MemoryBase uint64 `toml:"memory_base" yaml:"memory_base"`
	MemoryEnd  uint64 `toml:"memory_end" yaml:"memory_end"`

	// KernelEnd is the first address past the kernel image. Memory in
	// [KernelEnd, MemoryEnd) is handed to the frame allocator.
	KernelEnd uint64 `toml:"kernel_end" yaml:"kernel_end"`

	// BSSStart and BSSEnd delimit the kernel's zero-initialized data.
	BSSStart uint64 `toml:"bss_start" yaml:"bss_start"`
	BSSEnd   uint64 `toml:"bss_end" yaml:"bss_end"`

	// KernelStackBase and UserStackBase are the lowest addresses of the
	// per-application kernel and user stack arrays.
	KernelStackBase uint64 `toml:"kernel_stack_base" yaml:"kernel_stack_base"`
	KernelStackSize uint64 `toml:"kernel_stack_size" yaml:"kernel_stack_size"`
	UserStackBase   uint64 `toml:"user_stack_base" yaml:"user_stack_base"`
	UserStackSize   uint64 `toml:"user_stack_size" yaml:"user_stack_size"`

	// Application i is loaded at AppBase + i*AppSizeLimit.
	AppBase      uint64 `toml:"app_base" yaml:"app_base"`
	AppSizeLimit uint64 `toml:"app_size_limit" yaml:"app_size_limit"`
	MaxApps      int    `toml:"max_apps" yaml:"max_apps"`

	LogLevel string `toml:"log_level" yaml:"log_level"`
}

// Default returns the configuration of the reference machine.
func Default() Config {
	return Config{
		MemoryBase:      0x8000_0000,
		MemoryEnd:       0x8080_0000,
		KernelEnd:       0x8060_0000,
		BSSStart:        0x8034_0000,
		BSSEnd:          0x8035_0000,
		KernelStackBase: 0x8030_0000,
		KernelStackSize: uint64(8 * mm.Kb),
		UserStackBase:   0x8032_0000,
		UserStackSize:   uint64(8 * mm.Kb),
		AppBase:         0x8040_0000,
		AppSizeLimit:    0x2_0000,
		MaxApps:         task.MaxTaskNum,
		LogLevel:        "info",
	}
}

// Load reads a configuration file. Files with a .yaml or .yml extension are
// parsed as YAML, everything else as TOML. Keys missing from the file keep
// their default values; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(path, &cfg)
	default:
		err = decodeTOML(path, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("loading config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("loading config %q: %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type area struct {
	name       string
	start, end uint64
}

// Validate checks that the layout is page-aligned where required, that
// every area fits in the kernel's part of memory and that no two areas
// overlap.
func (c Config) Validate() error {
	if c.MaxApps <= 0 || c.MaxApps > task.MaxTaskNum {
		return fmt.Errorf("max_apps must be in [1, %d]; got %d", task.MaxTaskNum, c.MaxApps)
	}

	aligned := []struct {
		name string
		v    uint64
	}{
		{"memory_base", c.MemoryBase},
		{"memory_end", c.MemoryEnd},
		{"kernel_end", c.KernelEnd},
		{"app_base", c.AppBase},
		{"app_size_limit", c.AppSizeLimit},
	}
	for _, a := range aligned {
		if !mm.NewPhysAddr(a.v).Aligned() || mm.NewPhysAddr(a.v) != mm.PhysAddr(a.v) {
			return fmt.Errorf("%s must be a page-aligned physical address; got %#x", a.name, a.v)
		}
	}

	for _, s := range []struct {
		name string
		v    uint64
	}{{"kernel_stack_size", c.KernelStackSize}, {"user_stack_size", c.UserStackSize}} {
		if s.v == 0 || s.v%16 != 0 {
			return fmt.Errorf("%s must be a non-zero multiple of 16; got %#x", s.name, s.v)
		}
	}

	if c.AppSizeLimit == 0 {
		return fmt.Errorf("app_size_limit must not be zero")
	}

	if !(c.MemoryBase < c.KernelEnd && c.KernelEnd < c.MemoryEnd) {
		return fmt.Errorf("kernel_end %#x must lie inside memory [%#x, %#x)", c.KernelEnd, c.MemoryBase, c.MemoryEnd)
	}

	apps := uint64(c.MaxApps)
	areas := []area{
		{"bss", c.BSSStart, c.BSSEnd},
		{"kernel stacks", c.KernelStackBase, c.KernelStackBase + apps*c.KernelStackSize},
		{"user stacks", c.UserStackBase, c.UserStackBase + apps*c.UserStackSize},
		{"apps", c.AppBase, c.AppBase + apps*c.AppSizeLimit},
	}
	for _, a := range areas {
		if a.start > a.end || a.start < c.MemoryBase || a.end > c.KernelEnd {
			return fmt.Errorf("%s [%#x, %#x) must lie inside kernel memory [%#x, %#x)", a.name, a.start, a.end, c.MemoryBase, c.KernelEnd)
		}
	}

	sort.Slice(areas, func(i, j int) bool { return areas[i].start < areas[j].start })
	for i := 1; i < len(areas); i++ {
		if prev := areas[i-1]; prev.end > areas[i].start {
			return fmt.Errorf("%s overlaps %s", prev.name, areas[i].name)
		}
	}

	return nil
}

// MemorySize returns the size of the simulated RAM.
func (c Config) MemorySize() mm.Size {
	return mm.Size(c.MemoryEnd - c.MemoryBase)
}
