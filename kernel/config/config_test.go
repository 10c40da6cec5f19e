package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected the default configuration to be valid; got %v", err)
	}

	if exp, got := "8Mb", Default().MemorySize().String(); got != exp {
		t.Fatalf("expected memory size %s; got %s", exp, got)
	}
}

func TestValidate(t *testing.T) {
	specs := []struct {
		mutate func(*Config)
		expErr string
	}{
		{func(c *Config) { c.MaxApps = 0 }, "max_apps"},
		{func(c *Config) { c.MaxApps = 17 }, "max_apps"},
		{func(c *Config) { c.AppBase++ }, "app_base must be a page-aligned"},
		{func(c *Config) { c.MemoryEnd = 1 << 57 }, "memory_end must be a page-aligned"},
		{func(c *Config) { c.KernelStackSize = 12 }, "kernel_stack_size"},
		{func(c *Config) { c.UserStackSize = 0 }, "user_stack_size"},
		{func(c *Config) { c.AppSizeLimit = 0 }, "app_size_limit"},
		{func(c *Config) { c.KernelEnd = c.MemoryEnd }, "kernel_end"},
		{func(c *Config) { c.AppSizeLimit = 0x4_0000 }, "apps ["},
		{func(c *Config) { c.BSSEnd = c.BSSStart - 1 }, "bss ["},
		{func(c *Config) { c.UserStackBase = c.KernelStackBase + 0x1000 }, "kernel stacks overlaps user stacks"},
		{func(c *Config) { c.BSSStart, c.BSSEnd = 0x8033_0000, 0x8034_1000 }, "overlaps"},
	}

	for specIndex, spec := range specs {
		cfg := Default()
		spec.mutate(&cfg)

		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
max_apps = 4
app_base = 0x80500000
log_level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	exp := Default()
	exp.MaxApps = 4
	exp.AppBase = 0x8050_0000
	exp.LogLevel = "debug"
	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	specs := []struct {
		contents string
		expErr   string
	}{
		{`max_apps = "many"`, "loading config"},
		{`stack_size = 4096`, "unknown keys: stack_size"},
		{`max_apps = 32`, "max_apps"},
	}

	for specIndex, spec := range specs {
		_, err := Load(writeConfig(t, spec.contents))
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfigAs(t, "sv39os.yaml", `
max_apps: 2
kernel_stack_size: 0x4000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	exp := Default()
	exp.MaxApps = 2
	exp.KernelStackSize = 0x4000
	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}

	if _, err := Load(writeConfigAs(t, "empty.yml", "")); err != nil {
		t.Fatalf("expected an empty file to yield the defaults; got %v", err)
	}

	if _, err := Load(writeConfigAs(t, "bad.yaml", "stack_size: 1\n")); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func writeConfig(t *testing.T, contents string) string {
	return writeConfigAs(t, "sv39os.toml", contents)
}

func writeConfigAs(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
