package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/authsync/internal/linking"
	"github.com/roach88/authsync/internal/match"
	"github.com/roach88/authsync/internal/model"
)

// SuggestOptions holds flags for the suggest command.
type SuggestOptions struct {
	*RootOptions
	Tenant            string
	SearchBy          string
	IgnoreAutoLinking bool
}

// SuggestResult is the output of suggest.
type SuggestResult struct {
	Tenant string        `json:"tenant"`
	Fields []model.Field `json:"fields"`
}

// WriteText prints one line per field with its link outcome.
func (r SuggestResult) WriteText(w io.Writer) error {
	for _, f := range r.Fields {
		status := "-"
		if f.Link != nil {
			status = string(f.Link.Status)
			if f.Link.ErrorCause != "" {
				status += " " + string(f.Link.ErrorCause)
			}
			if f.Link.RuleID != nil {
				status += fmt.Sprintf(" rule=%d", *f.Link.RuleID)
			}
			if f.Link.AuthorityID != nil {
				status += " authority=" + f.Link.AuthorityID.String()
			}
		}
		fmt.Fprintf(w, "%s %s\n", f.Tag, status)
		for _, sf := range f.Subfields {
			fmt.Fprintf(w, "    $%s %s\n", sf.Code, sf.Value)
		}
	}
	return nil
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuggestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suggest <fields.json|->",
		Short: "Suggest authority links for bib fields",
		Long: `Read a JSON array of bib fields and print them with suggested links,
using the authorities stored for a tenant. Nothing is persisted.

Examples:
  authsync suggest --tenant diku fields.json
  cat fields.json | authsync suggest --tenant diku --search-by ID -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.SearchBy, "search-by", "", "authority reference: NATURAL_ID ($0) or ID ($9); default $9 when it parses, else $0")
	cmd.Flags().BoolVar(&opts.IgnoreAutoLinking, "ignore-auto-linking", false, "also evaluate rules with auto linking disabled")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runSuggest(cmd *cobra.Command, opts *SuggestOptions, input string) error {
	out := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	searchBy := match.SearchBy(opts.SearchBy)
	if !searchBy.Valid() {
		return out.Fail(ExitCommandError, CodeInput, fmt.Sprintf("invalid --search-by %q", opts.SearchBy), nil)
	}
	fields, err := readFields(cmd.InOrStdin(), input)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInput, "read fields", err)
	}

	sess, err := openSession(opts.RootOptions)
	if err != nil {
		return out.Fail(GetExitCode(err), CodeConfig, "start", err)
	}
	defer sess.Close()

	t, err := sess.existingTenant(cmd.Context(), opts.Tenant)
	if err != nil {
		return out.Fail(ExitCommandError, CodeTenant, "open tenant", err)
	}
	suggested, err := t.Links.Suggest(cmd.Context(), fields, linking.SuggestOptions{
		IgnoreAutoLinking: opts.IgnoreAutoLinking,
		SearchBy:          searchBy,
	})
	if err != nil {
		return out.Fail(ExitFailure, CodeInput, "suggest", err)
	}
	return out.Success(SuggestResult{Tenant: opts.Tenant, Fields: suggested})
}

func readFields(stdin io.Reader, input string) ([]model.Field, error) {
	var r io.Reader = stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var fields []model.Field
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
