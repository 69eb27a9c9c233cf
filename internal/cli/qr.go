package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/qrimage"
)

// NewQRCommand creates the qr command.
func NewQRCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	var scale int

	cmd := &cobra.Command{
		Use:   "qr [payload]",
		Short: "Draw an existing payload as a QR code",
		Long: `Render payload text as a QR code, on the terminal or as a PNG file.

The payload is read from the argument, or from stdin when the argument is
omitted or "-". The error-correction level comes from codec.level.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg := rootOpts.settings()

			text := "-"
			if len(args) == 1 {
				text = args[0]
			}
			if text == "-" {
				var err error
				if text, err = readPayload(cmd.InOrStdin()); err != nil {
					return WrapExitError(ExitCommandError, "failed to read payload", err)
				}
			}

			level, err := codec.ParseLevel(cfg.Codec.Level)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid codec level", err)
			}
			if scale <= 0 {
				scale = cfg.Codec.QRScale
			}

			if output != "" {
				if err := qrimage.WritePNG(output, text, level, scale); err != nil {
					return formatter.Fail("failed to render QR code", err)
				}
				return formatter.Success(map[string]any{"png": output, "level": string(level), "bytes": len(text)})
			}

			sym, err := qrimage.Terminal(text, level)
			if err != nil {
				return formatter.Fail("failed to render QR code", err)
			}
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"symbol": sym, "level": string(level), "bytes": len(text)})
			}
			return formatter.Success(strings.TrimRight(sym, "\n"))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write a PNG file instead of drawing on the terminal")
	cmd.Flags().IntVar(&scale, "scale", 0, "PNG pixels per module (default from config)")
	return cmd
}
