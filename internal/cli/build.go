package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/authclient"
	"github.com/roach88/lifeline/internal/builder"
	"github.com/roach88/lifeline/internal/codec"
	"github.com/roach88/lifeline/internal/console"
	"github.com/roach88/lifeline/internal/profile"
	"github.com/roach88/lifeline/internal/qrimage"
	"github.com/roach88/lifeline/internal/record"
)

// backendCheckTimeout bounds the reachability ping before generating.
const backendCheckTimeout = 2 * time.Second

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Profile string
	Lat     float64
	Lng     float64
	Address string
	TTL     time.Duration
	PNG     string
	Offline bool

	withLocation bool
}

// BuildResult is the JSON payload of a generated code.
type BuildResult struct {
	EmergencyID string `json:"emergency_id"`
	QRData      string `json:"qr_data"`
	Fingerprint string `json:"fingerprint"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Size        int    `json:"size"`
	Limit       int    `json:"limit"`
	HasLocation bool   `json:"has_location"`
	PNG         string `json:"png,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate an emergency code from a medical profile",
		Long: `Build an emergency record from a medical profile and encode it as a QR code.

Without --profile the demo patient is used. The location is attached only
when both --lat and --lng are given; otherwise the record carries none.

Examples:
  lifeline build --profile me.yaml
  lifeline build --profile me.yaml --lat 40.7128 --lng -74.006 --address "New York"
  lifeline build --png card.png --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.withLocation = cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")
			return runBuild(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Profile, "profile", "p", "", "medical profile YAML (default: demo patient)")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&opts.Lng, "lng", 0, "longitude in degrees")
	cmd.Flags().StringVar(&opts.Address, "address", "", "human-readable address")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "validity window (default from config)")
	cmd.Flags().StringVar(&opts.PNG, "png", "", "also write the QR code to this PNG file")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "skip the backend reachability check")

	return cmd
}

func runBuild(ctx context.Context, opts *BuildOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.settings()

	p := record.DemoProfile()
	if opts.Profile != "" {
		v, err := profile.NewValidator()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load profile schema", err)
		}
		if p, err = v.Load(opts.Profile); err != nil {
			return reportProfileError(formatter, opts.Profile, err)
		}
	}
	formatter.VerboseLog("Building record for subject %s", p.SubjectID)

	enc, _, err := newCodec(cfg.Codec, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec config", err)
	}

	ttl := cfg.Builder.TTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}
	bopts := builder.Options{
		Clock:         opts.Clock,
		TTL:           ttl,
		LocateTimeout: cfg.Builder.LocateTimeout,
		Logger:        opts.log(),
	}
	if opts.withLocation {
		bopts.Locator = builder.FixedLocator{Loc: record.NewLocation(opts.Lat, opts.Lng, opts.Address)}
	}

	caps := console.Capabilities{}
	if !opts.Offline {
		auth := authclient.New(authclient.Options{BaseURL: cfg.Auth.BaseURL, Timeout: backendCheckTimeout, Logger: opts.log()})
		pctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
		caps = console.DetectCapabilities(pctx, nil, auth.Health)
		cancel()
	}

	con, err := console.New(console.Options{
		Role:         console.PatientRole{Profile: p},
		Capabilities: caps,
		Builder:      builder.New(bopts),
		Encoder:      enc,
		Clock:        opts.Clock,
		Logger:       opts.log(),
	})
	if err != nil {
		return err
	}

	card, err := con.Generate(ctx)
	if err != nil {
		var verr *record.ValidationError
		if errors.As(err, &verr) {
			return reportProfileError(formatter, opts.Profile, err)
		}
		return formatter.Fail("failed to generate emergency code", err)
	}

	if opts.PNG != "" {
		if err := qrimage.WritePNG(opts.PNG, card.Encoded.Payload, card.Encoded.Level, cfg.Codec.QRScale); err != nil {
			return WrapExitError(ExitCommandError, "failed to write PNG", err)
		}
		formatter.VerboseLog("Wrote %s", opts.PNG)
	}

	result := BuildResult{
		EmergencyID: card.Record.EmergencyID,
		QRData:      card.Encoded.Payload,
		Fingerprint: card.Encoded.Fingerprint,
		Size:        card.Encoded.Size,
		Limit:       card.Encoded.Limit,
		HasLocation: card.Record.Location != nil,
		PNG:         opts.PNG,
	}
	if card.Record.HasExpiry() {
		result.ExpiresAt = card.Record.ExpiresAt.UTC().Format(codec.TimeLayout)
	}

	if opts.Format == "json" {
		return formatter.Success(result, card.Notices...)
	}
	return formatter.Success(formatCard(card, result), card.Notices...)
}

func formatCard(card *console.Card, r BuildResult) string {
	var b strings.Builder
	b.WriteString(card.Symbol)
	if !strings.HasSuffix(card.Symbol, "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Emergency ID: %s\n", r.EmergencyID)
	if r.ExpiresAt != "" {
		fmt.Fprintf(&b, "Expires:      %s\n", r.ExpiresAt)
	}
	fmt.Fprintf(&b, "Size:         %d/%d bytes\n", r.Size, r.Limit)
	fmt.Fprintf(&b, "Payload:      %s", r.QRData)
	return b.String()
}
