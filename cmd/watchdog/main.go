package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucid-vigil/watchdog/pkg/config"
	"github.com/lucid-vigil/watchdog/pkg/logger"
	"github.com/lucid-vigil/watchdog/pkg/prober"
	"github.com/lucid-vigil/watchdog/pkg/scheduler"
	"github.com/lucid-vigil/watchdog/pkg/state"
	"github.com/lucid-vigil/watchdog/pkg/version"
	"github.com/lucid-vigil/watchdog/pkg/watchdog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		liveOnly   bool
		dryRun     bool
	)

	rootCmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Network integrity watchdog",
		Long: `watchdog probes the local network for integrity problems (ARP spoofing,
DNS poisoning, rogue DHCP, unreachable infrastructure) and compares the latest
scanner snapshots for new vulnerabilities, risky ports and expiring certificates.
Actionable alerts are sent as a single digest message.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := setup(configPath)
			if err != nil {
				return err
			}

			mode := scheduler.ModeFull
			if liveOnly {
				mode = scheduler.ModeLive
			}

			ctx, stop := signalContext()
			defer stop()

			_, err = w.Run(ctx, watchdog.Options{Mode: mode, DryRun: dryRun})
			if errors.Is(err, state.ErrLocked) {
				log.Warn().Msg("Another watchdog run is in progress, exiting.")
				return nil
			}
			if err != nil {
				log.Error().Err(err).Msg("Watchdog run failed")
			}
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to watchdog.yaml")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Print the digest instead of sending it")
	rootCmd.Flags().BoolVar(&liveOnly, "live-only", false, "Run only the live probes")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run continuously: live probes on an interval, full runs on new snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := setup(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			log.Info().Msg("Watchdog watch mode starting...")
			err = w.Watch(ctx, dryRun)
			log.Info().Msg("Watchdog watch mode stopped.")
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(watchCmd, versionCmd)
	return rootCmd
}

// setup loads configuration, initializes logging and builds the watchdog.
func setup(configPath string) (*watchdog.Watchdog, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.InitLogger(cfg.LogLevel, cfg.LogFormat)

	p := prober.NewSystem(prober.Timeouts{
		Ping: cfg.Timeouts.Ping,
		DNS:  cfg.Timeouts.DNS,
		TLS:  cfg.Timeouts.TLS,
		DHCP: cfg.Timeouts.DHCP,
	}, prober.WithResolvConf(cfg.Network.ResolvConf))

	return watchdog.New(cfg, p, log.Logger)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "watchdog %s\n", version.GetFullVersion())
}
