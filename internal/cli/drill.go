package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/harness"
)

// DrillOptions holds flags for the drill command.
type DrillOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // drill filter (glob pattern)
}

// DrillResult holds the result of a single drill.
type DrillResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	State  string   `json:"state,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// DrillSummary holds the overall drill run.
type DrillSummary struct {
	Drills []DrillResult `json:"drills"`
	Passed int           `json:"passed"`
	Failed int           `json:"failed"`
	Total  int           `json:"total"`
}

// NewDrillCommand creates the drill command.
func NewDrillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drill <drills-dir>",
		Short: "Replay intake drills",
		Long: `Replay YAML intake drills against the responder state machine.

Each drill issues its records, runs its steps with a manual clock and
checks its assertions. When golden/<name>.golden exists next to a drill
file, the trace must also match it byte for byte.

Exit codes:
  0 - All drills passed
  1 - One or more drills failed
  2 - Command error (missing directory, bad filter)

Examples:
  lifeline drill ./drills
  lifeline drill ./drills --filter "stale-*"
  lifeline drill ./drills --update
  lifeline drill ./drills --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrills(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter drills by glob pattern")

	return cmd
}

func runDrills(ctx context.Context, opts *DrillOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("drills directory not found: %s", dir))
	}

	files, err := findDrillFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find drills", err)
	}

	summary := DrillSummary{Drills: make([]DrillResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(summary)
		}
		return formatter.Success("No drills found.")
	}

	w := io.Discard
	if formatter.Format != "json" {
		w = formatter.Writer
	}
	for _, file := range files {
		res := runDrill(ctx, opts, file)
		printDrillResult(w, res)
		summary.Drills = append(summary.Drills, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if formatter.Format == "json" {
		if summary.Failed > 0 {
			if err := formatter.Error(ErrCodeDrill, fmt.Sprintf("%d of %d drills failed", summary.Failed, summary.Total), summary); err != nil {
				return err
			}
		} else if err := formatter.Success(summary); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d drill(s) failed", summary.Failed))
	}
	return nil
}

func printDrillResult(w io.Writer, res DrillResult) {
	if res.Pass {
		fmt.Fprintf(w, "✓ %s\n", res.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// findDrillFiles finds all YAML drill files in a directory tree.
func findDrillFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runDrill executes a single drill file.
func runDrill(ctx context.Context, opts *DrillOptions, file string) DrillResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	drill, err := harness.LoadDrill(file)
	if err != nil {
		return DrillResult{Name: name, Errors: []string{fmt.Sprintf("load error: %v", err)}}
	}
	name = drill.Name

	result, err := harness.Run(ctx, drill, harness.Options{Logger: opts.log()})
	if err != nil {
		return DrillResult{Name: name, Errors: []string{fmt.Sprintf("execution error: %v", err)}}
	}
	res := DrillResult{Name: name, Pass: result.Pass, State: string(result.State), Errors: result.Errors}

	snapshot := harness.TraceSnapshot{DrillName: drill.Name, State: string(result.State), Trace: result.Trace}
	data, err := snapshot.Marshal()
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return res
	}

	goldenPath := goldenFilePath(file)
	if opts.Update {
		if err := writeGolden(goldenPath, data); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("golden update error: %v", err))
		}
		return res
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		// No golden file, assertions only.
		return res
	}
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return res
	}
	if !bytes.Equal(golden, data) {
		res.Pass = false
		res.Errors = append(res.Errors, "golden file mismatch (run with --update to regenerate)")
	}
	return res
}

// goldenFilePath returns the path to the golden file for a drill.
func goldenFilePath(drillFile string) string {
	base := filepath.Base(drillFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(drillFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
