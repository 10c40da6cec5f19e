package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sv39os/kernel/config"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/kmain"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

var errWatchdog = errors.New("kernel did not halt in time")

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	apps    string
	timeout time.Duration
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the kernel and run the linked applications."
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - boot the kernel and run applications until all of them exit.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.apps, "apps", strings.Join(appNames(), ","), "comma-separated list of applications to link.")
	f.DurationVar(&b.timeout, "timeout", 0, "halt with an error if the kernel is still running after this long (0 disables).")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg := args[0].(*config.Config)
	log := kfmt.Module("boot")

	apps, err := selectApps(strings.Split(b.apps, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitUsageError
	}

	k, kerr := kmain.New(*cfg, apps, os.Stdout)
	if kerr != nil {
		log.Errorf("boot failed: %v", kerr)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	halted := make(chan struct{})
	status := 0

	k.Run()
	g.Go(func() error {
		defer close(halted)
		var err error
		status, err = k.Wait(gctx)
		return err
	})
	if b.timeout > 0 {
		g.Go(func() error {
			select {
			case <-halted:
				return nil
			case <-gctx.Done():
				return nil
			case <-time.After(b.timeout):
				return fmt.Errorf("%w: %s", errWatchdog, b.timeout)
			}
		})
	}

	if err := g.Wait(); err != nil {
		// The machine may still be executing; leave its memory mapped.
		log.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	if err := k.Close(); err != nil {
		log.WithError(err).Warn("unable to release machine memory")
	}

	log.Infof("machine halted with status %d", status)
	if status != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
