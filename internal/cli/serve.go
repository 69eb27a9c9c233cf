package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/inference"
	"github.com/roach88/lifeline/internal/server"
	"github.com/roach88/lifeline/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	DB       string
	SeedDemo bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve authentication, QR generation and scanning, incident resolution
and the assistant chat relay.

The incident ledger is in memory unless --db names a SQLite file. Stops
gracefully on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.settings()
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = opts.Addr
			}
			if cmd.Flags().Changed("db") {
				cfg.Store.Path = opts.DB
			}
			if cmd.Flags().Changed("seed-demo") {
				cfg.Server.SeedDemo = opts.SeedDemo
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite file for the incident ledger (default in memory)")
	cmd.Flags().BoolVar(&opts.SeedDemo, "seed-demo", true, "create the demo accounts at startup")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.settings()
	logger := opts.log()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()

	provider, err := inference.New(ctx, cfg.Inference, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create inference provider", err)
	}

	enc, dec, err := newCodec(cfg.Codec, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec config", err)
	}

	srv, err := server.New(server.Options{
		Store:    st,
		Provider: provider,
		Encoder:  enc,
		Decoder:  dec,
		Build: builder.Options{
			TTL:           cfg.Builder.TTL,
			LocateTimeout: cfg.Builder.LocateTimeout,
		},
		QRScale: cfg.Codec.QRScale,
		Clock:   opts.Clock,
		Logger:  logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	if cfg.Server.SeedDemo {
		if err := srv.SeedDemo(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to seed demo accounts", err)
		}
	}

	logger.Info("starting lifeline server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Path),
		zap.String("provider", provider.Name()),
	)
	err = srv.Run(ctx, server.RunOptions{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "server stopped", err)
	}
	return nil
}
