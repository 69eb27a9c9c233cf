package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/console"
	"github.com/roach88/lifeline/internal/fault"
)

// DecodeResult is the JSON payload of a decoded code.
type DecodeResult struct {
	EmergencyID      string          `json:"emergency_id"`
	Status           string          `json:"status"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Format           string          `json:"format"`
	Sealed           bool            `json:"sealed"`
	MapsURL          string          `json:"maps_url,omitempty"`
	Record           json.RawMessage `json:"record"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [payload]",
		Short: "Decode an emergency code",
		Long: `Decode scanned QR text and show the emergency record.

The payload is read from the argument, or from stdin when the argument is
omitted or "-". Framed codes (EMERGENCY:...), bare bodies and plain JSON
records are accepted.

Exit codes:
  0 - Record decoded and still valid
  1 - Malformed payload, or the record has expired (it is still shown)
  2 - Command error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			return runDecode(rootOpts, text, cmd)
		},
	}
	return cmd
}

// readPayload returns the first non-blank line of r.
func readPayload(r io.Reader) (string, error) {
	sc := bufio.NewScanner(io.LimitReader(r, codec.MaxInputBytes+1))
	sc.Buffer(make([]byte, 0, 4096), codec.MaxInputBytes+1)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no payload on stdin")
}

func runDecode(opts *RootOptions, text string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	_, dec, err := newCodec(opts.settings().Codec, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec config", err)
	}

	decoded, err := dec.Decode(text)
	if err != nil {
		return formatter.Fail("failed to decode", err)
	}
	formatter.VerboseLog("Recognized %s payload (sealed=%v)", decoded.Format, decoded.Sealed)
	return showDecoded(formatter, decoded, nil)
}

// showDecoded writes a decoded record and turns expiry into ExitFailure
// after the record has been shown.
func showDecoded(formatter *OutputFormatter, d *codec.Decoded, notices []string) error {
	if d.Status == codec.StatusExpired {
		notices = append(notices, fault.NoticeFor(fault.KindExpired))
	}

	if formatter.Format == "json" {
		raw, err := codec.MarshalRecord(d.Record)
		if err != nil {
			return err
		}
		err = formatter.Success(DecodeResult{
			EmergencyID:      d.Record.EmergencyID,
			Status:           string(d.Status),
			RemainingSeconds: int64(d.Remaining.Seconds()),
			Format:           string(d.Format),
			Sealed:           d.Sealed,
			MapsURL:          console.MapsURL(d.Record.Location),
			Record:           raw,
		}, notices...)
		if err != nil {
			return err
		}
	} else {
		if err := console.Render(formatter.Writer, d); err != nil {
			return err
		}
		formatter.printNotices(notices)
	}

	if err := d.Err(); err != nil {
		return WrapExitError(ExitFailure, "record expired", err)
	}
	return nil
}
