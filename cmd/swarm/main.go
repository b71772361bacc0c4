package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ingressd/internal/config"
	"github.com/danmuck/ingressd/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	observability.InitLogger("swarm")
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "swarm: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultSwarmOptions()
	var configPath string

	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Open and hold many connections against an ingress listener",
		Long: `swarm dials the target once per client at a fixed interval and keeps
every successful connection open for the hold duration. It is used to
drive the listener into its open file limit and watch it recover.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" && !cmd.Flags().Changed("count") {
				settings, err := config.LoadSettings(configPath)
				if err != nil {
					return err
				}
				opts.Count = settings.MaxConnections
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("target", opts.Target).Int("clients", opts.Count).Msg("starting swarm")
			res, err := runSwarm(ctx, opts)
			log.Info().Int64("connected", res.Connected).Int64("rejected", res.Rejected).Msg("swarm finished")
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Target, "target", opts.Target, "listener address host:port")
	flags.IntVar(&opts.Count, "count", opts.Count, "number of clients to open")
	flags.DurationVar(&opts.Interval, "interval", opts.Interval, "pause between dials")
	flags.DurationVar(&opts.Hold, "hold", opts.Hold, "how long each client stays connected")
	flags.DurationVar(&opts.DialTimeout, "dial-timeout", opts.DialTimeout, "per-dial timeout")
	flags.BoolVar(&opts.Send, "send", opts.Send, "send one frame after connecting")
	flags.Uint8Var(&opts.Header, "header", opts.Header, "header byte of the sent frame")
	flags.IntVar(&opts.PayloadSize, "payload-size", opts.PayloadSize, "payload bytes in the sent frame")
	flags.StringVar(&configPath, "config", "", "take --count from max_connections in this TOML file")
	return cmd
}
