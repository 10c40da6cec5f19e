// Command sv39os boots the kernel on a simulated SV39 machine and offers a
// few tools to inspect its data structures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sv39os/kernel/config"
	"sv39os/kernel/kfmt"

	"github.com/google/subcommands"
)

var (
	configPath = flag.String("config", "", "path to a TOML configuration file.")
	logLevel   = flag.String("log-level", "", "log level (overrides the configuration file).")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Boot), "")
	subcommands.Register(new(SelfTest), "")
	subcommands.Register(new(PTE), "inspect")
	subcommands.Register(new(VPN), "inspect")

	flag.Parse()

	kfmt.SetOutputSink(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(int(subcommands.ExitUsageError))
	}

	os.Exit(int(subcommands.Execute(context.Background(), &cfg)))
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := kfmt.SetLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return cfg, nil
}
