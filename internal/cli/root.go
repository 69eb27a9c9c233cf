package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/clock"
	"github.com/roach88/lifeline/internal/config"
	"github.com/roach88/lifeline/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	LogLevel   string

	// Clock overrides the wall clock; tests pin it.
	Clock clock.Clock

	cfg    *config.Config
	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lifeline CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lifeline",
		Short: "LIFELINE - emergency records you can scan",
		Long: `Emergency record toolkit.

Patients turn a medical profile into a QR emergency code; responders scan
or paste the code to see blood type, allergies, medication, the emergency
contact and where the patient was.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewQRCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewDrillCommand(opts))

	return cmd
}

// load reads the config and builds the logger. Flags win over the file and
// environment.
func (o *RootOptions) load() error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	} else if o.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

// settings returns the loaded configuration, or the defaults before load.
func (o *RootOptions) settings() *config.Config {
	if o.cfg == nil {
		return config.Default()
	}
	return o.cfg
}

// log returns the command logger, or a no-op before load.
func (o *RootOptions) log() *zap.Logger {
	return logging.OrNop(o.logger)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
