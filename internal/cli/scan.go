package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/authclient"
	"github.com/roach88/lifeline/internal/console"
	"github.com/roach88/lifeline/internal/intake"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Responder  string
	Manual     bool
	Demo       bool
	CameraGlob string
	OpenMap    bool
	Call       bool
	Resolve    bool
	Offline    bool
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Responder intake: scan, paste or demo an emergency code",
		Long: `Run one responder intake.

Sources are tried in order: the camera (when a capture device is present),
a code pasted on stdin (--manual), then the built-in demo record (--demo).
Each unavailable source adds a notice and the next one is tried.

Examples:
  echo 'EMERGENCY:...' | lifeline scan
  lifeline scan --manual=false --demo --open-map`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Responder, "responder", "cli-responder", "responder id")
	cmd.Flags().BoolVar(&opts.Manual, "manual", true, "read a pasted code from stdin")
	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "fall back to the demo record")
	cmd.Flags().StringVar(&opts.CameraGlob, "camera-glob", "", "capture device glob (default /dev/video*)")
	cmd.Flags().BoolVar(&opts.OpenMap, "open-map", false, "open the patient's location in the map app")
	cmd.Flags().BoolVar(&opts.Call, "call", false, "dial the emergency contact")
	cmd.Flags().BoolVar(&opts.Resolve, "resolve", false, "mark the incident resolved after viewing")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "skip the backend reachability check")

	return cmd
}

func runScan(ctx context.Context, opts *ScanOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.settings()

	enc, dec, err := newCodec(cfg.Codec, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec config", err)
	}

	probe := intake.DeviceProbe{Pattern: opts.CameraGlob}
	var ping func(context.Context) error
	if !opts.Offline {
		ping = authclient.New(authclient.Options{BaseURL: cfg.Auth.BaseURL, Timeout: backendCheckTimeout, Logger: opts.log()}).Health
	}
	pctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	caps := console.DetectCapabilities(pctx, probe, ping)
	cancel()
	formatter.VerboseLog("Capabilities: camera=%v backend=%v", caps.CameraAvailable, caps.BackendReachable)

	copts := console.Options{
		Role:         console.ResponderRole{ResponderID: opts.Responder},
		Capabilities: caps,
		Encoder:      enc,
		Decoder:      dec,
		Camera:       intake.CameraSource{Probe: probe},
		DemoFallback: opts.Demo,
		DemoTTL:      cfg.Builder.TTL,
		Clock:        opts.Clock,
		Logger:       opts.log(),
	}
	if opts.Manual {
		copts.Manual = cmd.InOrStdin()
		copts.Prompt = formatter.GetErrWriter()
	}
	con, err := console.New(copts)
	if err != nil {
		return err
	}

	started := time.Now()
	outcome, err := con.Scan(ctx)
	if err != nil {
		if intake.IsTransitionError(err) || errors.Is(err, context.Canceled) {
			return err
		}
		if outcome != nil {
			formatter.printNotices(outcome.Notices)
		}
		return formatter.Fail("scan failed", err)
	}
	formatter.VerboseLog("Received from %s in %s", outcome.Source, time.Since(started).Round(time.Millisecond))

	notices := outcome.Notices
	rec := outcome.Decoded.Record
	if opts.OpenMap {
		notices = appendNotice(notices, con.OpenMap(ctx, rec.Location))
	}
	if opts.Call {
		notices = appendNotice(notices, con.Call(ctx, rec.MedicalSummary.EmergencyContact))
	}
	if opts.Resolve {
		if err := con.Resolve(); err != nil {
			return err
		}
		notices = append(notices, fmt.Sprintf("Incident %s resolved.", rec.EmergencyID))
	}

	return showDecoded(formatter, outcome.Decoded, notices)
}

func appendNotice(notices []string, n string) []string {
	if n == "" {
		return notices
	}
	return append(notices, n)
}
