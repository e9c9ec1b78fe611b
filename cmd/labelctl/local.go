package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"labelcomposer/internal/domain"
	"labelcomposer/internal/loader"
	"labelcomposer/internal/service"
)

// buildFile loads a scheme file and builds its collection
func (a *app) buildFile(path string) (*domain.Scheme, *domain.LabelCollection, error) {
	scheme, err := loader.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := scheme.Build(
		domain.WithWarnThreshold(a.cfg.Closure.WarnThreshold),
		domain.WithLogger(a.logger.With("scheme", scheme.Name)),
	)
	if err != nil {
		return nil, nil, err
	}
	return scheme, c, nil
}

type checkResult struct {
	Scheme     string `json:"scheme"`
	Computable bool   `json:"computable"`
}

func newCheckCmd(a *app) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "check <file> [atom-ref...]",
		Short: "Report whether a set of atoms, or a label, can be derived",
		Long: `Report whether the union of the given atoms can be derived from the
labels of a scheme file. Atoms are referenced by name, or name#index when
names repeat. With --label the atoms of that label are checked instead.

Exits 0 when derivable, 1 when not, 2 on error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, c, err := a.buildFile(args[0])
			if err != nil {
				return err
			}

			refs := args[1:]
			var target domain.AtomSource
			switch {
			case label != "" && len(refs) > 0:
				return fmt.Errorf("give either atoms or --label, not both")
			case label != "":
				l, err := c.LabelByName(label)
				if err != nil {
					return err
				}
				target = l
			case len(refs) > 0:
				set, err := domain.NewAtomResolver(c.Atoms()).ResolveAll(refs)
				if err != nil {
					return err
				}
				target = set
			default:
				return fmt.Errorf("atoms or --label is required")
			}

			ok := c.CanCompute(target)
			if a.jsonOutput {
				err = writeJSON(cmd.OutOrStdout(), checkResult{Scheme: scheme.Name, Computable: ok})
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", scheme.Name, verdict(ok))
			}
			if err != nil {
				return err
			}
			if !ok {
				return &exitError{code: exitNotComputable}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "check the label with this name")
	return cmd
}

func newClosureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "closure <file>",
		Short: "Show the atoms and sets a scheme file can derive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, c, err := a.buildFile(args[0])
			if err != nil {
				return err
			}

			report := service.NewClosureReport(scheme.Name, c)
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func newCompareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <file> <other-file>",
		Short: "Check whether the labels of one scheme file derive from another",
		Long: `Check whether every label of <other-file> can be derived from the labels
of <file>, and the other way around. Both schemes must share their atoms.

Exits 0 when <other-file> is derivable from <file>, 1 when not, 2 on error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, c, err := a.buildFile(args[0])
			if err != nil {
				return err
			}
			other, o, err := a.buildFile(args[1])
			if err != nil {
				return err
			}

			cmp := service.CompareCollections(scheme.Name, other.Name, c, o)
			if a.jsonOutput {
				err = writeJSON(cmd.OutOrStdout(), cmp)
			} else {
				err = printComparison(cmd.OutOrStdout(), cmp)
			}
			if err != nil {
				return err
			}
			if !cmp.Computable {
				return &exitError{code: exitNotComputable}
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printReport(w io.Writer, r *service.ClosureReport) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scheme:     %s\n", r.Scheme)
	fmt.Fprintf(&sb, "Atoms:      %d\n", len(r.Atoms))
	fmt.Fprintf(&sb, "Labels:     %d\n", len(r.Labels))
	fmt.Fprintf(&sb, "Complete:   %v\n", r.Complete)
	fmt.Fprintf(&sb, "Computable: %s\n", joinOrNone(r.ComputableAtoms))
	if len(r.Unresolved) > 0 {
		fmt.Fprintf(&sb, "Unresolved: %s\n", strings.Join(r.Unresolved, ", "))
	}
	if len(r.ComputableSets) > 0 {
		sb.WriteString("Computable sets:\n")
		for _, set := range r.ComputableSets {
			fmt.Fprintf(&sb, "  {%s}\n", strings.Join(set, ", "))
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func printComparison(w io.Writer, c *service.Comparison) error {
	var sb strings.Builder
	if !c.SameUniverse {
		fmt.Fprintf(&sb, "%s and %s are defined over different atoms\n", c.Scheme, c.Other)
	}
	fmt.Fprintf(&sb, "%s from %s: %s\n", c.Other, c.Scheme, verdict(c.Computable))
	fmt.Fprintf(&sb, "%s from %s: %s\n", c.Scheme, c.Other, verdict(c.Reverse))
	if len(c.Missing) > 0 {
		fmt.Fprintf(&sb, "Not derivable: %s\n", strings.Join(c.Missing, ", "))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func verdict(ok bool) string {
	if ok {
		return "computable"
	}
	return "not computable"
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
