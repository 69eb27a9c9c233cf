package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/profile"
	"github.com/roach88/lifeline/internal/record"
)

// ProfileCheck is the JSON payload of profile validate.
type ProfileCheck struct {
	Valid   bool            `json:"valid"`
	Profile *record.Profile `json:"profile,omitempty"`
	Issues  []profile.Issue `json:"issues,omitempty"`
}

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Work with medical profile files",
	}
	cmd.AddCommand(newProfileValidateCommand(rootOpts))
	cmd.AddCommand(newProfileInitCommand(rootOpts))
	return cmd
}

func newProfileValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <profile.yaml>",
		Short: "Check a medical profile against the schema",
		Long: `Validate a medical profile YAML file.

Lists are trimmed and de-duplicated and the blood type is normalized before
the schema check. The normalized profile is printed on success.

Exit codes:
  0 - Profile is valid
  1 - Profile has schema violations
  2 - Command error (unreadable file, malformed YAML)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileValidate(rootOpts, args[0], cmd)
		},
	}
}

func runProfileValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	v, err := profile.NewValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load profile schema", err)
	}
	p, err := v.Load(path)
	if err != nil {
		return reportProfileError(formatter, path, err)
	}

	if opts.Format == "json" {
		return formatter.Success(ProfileCheck{Valid: true, Profile: &p})
	}
	out, err := profile.Marshal(p)
	if err != nil {
		return err
	}
	return formatter.Success(fmt.Sprintf("✓ %s is valid\n\n%s", path, strings.TrimRight(string(out), "\n")))
}

// reportProfileError prints schema issues and returns the matching exit
// error. Read and parse failures are command errors.
func reportProfileError(formatter *OutputFormatter, path string, err error) error {
	var verr *profile.ValidationError
	if errors.As(err, &verr) {
		if formatter.Format == "json" {
			if outErr := formatter.Error(ErrCodeProfile, "invalid profile", ProfileCheck{Issues: verr.Issues}); outErr != nil {
				return outErr
			}
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %s\n", path)
			for _, is := range verr.Issues {
				if is.Path != "" {
					fmt.Fprintf(formatter.Writer, "  %s: %s\n", is.Path, is.Message)
				} else {
					fmt.Fprintf(formatter.Writer, "  %s\n", is.Message)
				}
			}
		}
		return WrapExitError(ExitFailure, "invalid profile", err)
	}

	var rerr *record.ValidationError
	if errors.As(err, &rerr) {
		if outErr := formatter.Error(ErrCodeProfile, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "invalid profile", err)
	}

	if outErr := formatter.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "failed to load profile", err)
}

func newProfileInitCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter profile based on the demo patient",
		Example: `  lifeline profile init -o me.yaml
  lifeline profile init > me.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := profile.Marshal(record.DemoProfile())
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if !force {
				if _, err := os.Stat(output); err == nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", output))
				}
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write profile", err)
			}
			rootOpts.formatter(cmd).VerboseLog("Wrote %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
