package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"labelcomposer/internal/codec"
	"labelcomposer/internal/config"
	"labelcomposer/internal/loader"
	"labelcomposer/internal/logging"
	"labelcomposer/internal/metrics"
	"labelcomposer/internal/repository/sqlite"
	"labelcomposer/internal/service"
)

// store is an opened database with a loaded scheme service
type store struct {
	repo    *sqlite.Repository
	bus     *service.EventBus
	metrics *metrics.Metrics
	svc     *service.SchemeService
}

func (a *app) openStore(ctx context.Context) (*store, error) {
	if err := config.EnsureParentDir(a.cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	repo, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.Database.Path, err)
	}

	bus := service.NewEventBus()
	m := metrics.New()
	svc := service.NewSchemeService(repo, bus, m,
		service.WithLogger(logging.ForComponent("service")),
		service.WithWarnThreshold(a.cfg.Closure.WarnThreshold),
	)
	if err := svc.Load(ctx); err != nil {
		a.logger.Warn("some stored schemes failed to load", "error", err)
	}
	return &store{repo: repo, bus: bus, metrics: m, svc: svc}, nil
}

func (s *store) Close() error {
	return s.repo.Close()
}

func newImportCmd(a *app) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Store scheme files in the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, path := range args {
				scheme, err := loader.LoadFile(path)
				if err != nil {
					return err
				}
				var result *service.ImportResult
				if replace {
					result, err = st.svc.PutScheme(ctx, scheme, path)
				} else {
					result, err = st.svc.CreateScheme(ctx, scheme, path)
				}
				if err != nil {
					return err
				}

				if a.jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
					continue
				}
				action := "updated"
				if result.Created {
					action = "created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d atoms, %d labels)\n", action, result.Scheme, result.Atoms, result.Labels)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "replace schemes that already exist")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write a stored scheme as YAML, JSON or TOML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := codec.ForFormat(format); err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return st.svc.Export(args[0], format, w)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml, json, toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			summaries, err := st.svc.ListSchemes(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tATOMS\tLABELS\tSOURCE\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Name, s.Atoms, s.Labels, s.Source, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}
