package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/authsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "mismatch"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// WriteText prints one line per scenario and a summary.
func (r TestResult) WriteText(w io.Writer) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		suffix := ""
		if s.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, s.Name, suffix)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return err
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run link scenarios",
		Long: `Run YAML link scenarios against an in-memory tenant.

Each scenario seeds authorities, then suggests fields, updates instance
links and changes authorities, checking the expectations and assertions it
declares. When golden/<name>.golden exists next to a scenario, its trace
must match byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  authsync test ./scenarios
  authsync test ./scenarios --filter "tesla_*"
  authsync test ./scenarios --update
  authsync test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	out := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(scenariosDir); err != nil {
		return out.Fail(ExitCommandError, CodeInput, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), err)
	}
	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInput, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, f := range files {
		out.VerboseLog("running %s", f)
		sr := runScenario(f, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if result.Failed > 0 && opts.Format == "json" {
		if err := out.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: CodeTestFailed, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	if err := out.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles finds the YAML scenario files directly in dir. The
// golden/ subdirectory is never searched.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// runScenario executes one scenario file and checks or rewrites its golden
// trace.
func runScenario(path string, update bool) ScenarioResult {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{Name: base, Errors: []string{fmt.Sprintf("load error: %v", err)}}
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{Name: scenario.Name, Errors: []string{fmt.Sprintf("execution error: %v", err)}}
	}

	sr := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("snapshot: %v", err))
		return sr
	}

	goldenPath := goldenFilePath(path)
	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("create golden directory: %v", err))
			return sr
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("write golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return sr
	}
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("read golden file: %v", err))
		return sr
	}
	if !bytes.Equal(want, snapshot) {
		sr.Pass = false
		sr.Golden = "mismatch"
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
		return sr
	}
	sr.Golden = "match"
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
