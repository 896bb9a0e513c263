// Package main provides the misdash command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"misdash/pkg/api"
	"misdash/pkg/config"
	"misdash/pkg/export"
	"misdash/pkg/pipeline"
	"misdash/pkg/server"
)

var (
	verbose    bool
	query      string
	fuzzyMode  bool
	outputPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "misdash",
		Short:         "Spreadsheet-backed dashboard data service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch [view]",
		Short: "Fetch one view and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}
	fetchCmd.Flags().StringVarP(&query, "query", "q", "", "Only print rows matching this text")
	fetchCmd.Flags().BoolVar(&fuzzyMode, "fuzzy", false, "Fuzzy match the query")

	exportCmd := &cobra.Command{
		Use:   "export [view]",
		Short: "Fetch one view and write it as an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: <view>.xlsx)")

	refreshCmd := &cobra.Command{
		Use:   "refresh-all",
		Short: "Fetch every configured view and report failures",
		Args:  cobra.NoArgs,
		RunE:  runRefreshAll,
	}

	rootCmd.AddCommand(serveCmd, fetchCmd, exportCmd, refreshCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadApp(ctx context.Context) (*server.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !verbose {
		log.SetLevel(cfg.LogrusLogLevel())
	}
	return server.New(ctx, cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	app.LoadCommitments(ctx)
	return app.Serve(ctx)
}

func refreshView(ctx context.Context, name string) (*pipeline.Pipeline, pipeline.State, error) {
	app, err := loadApp(ctx)
	if err != nil {
		return nil, pipeline.State{}, err
	}
	p, ok := app.Views.Get(name)
	if !ok {
		return nil, pipeline.State{}, fmt.Errorf("unknown view %q (have %v)", name, app.Views.Names())
	}
	st, err := p.Refresh(ctx)
	if err != nil {
		return nil, st, fmt.Errorf("refresh %s: %w", name, err)
	}
	return p, st, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	_, st, err := refreshView(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	st.Rows = pipeline.Search(st.Rows, query, fuzzyMode)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runExport(cmd *cobra.Command, args []string) error {
	p, st, err := refreshView(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	path := outputPath
	if path == "" {
		path = export.SheetName(st.View, "export") + ".xlsx"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := export.WriteXLSX(f, st, api.Summaries(p)...); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Infof("wrote %d rows to %s", len(st.Rows), path)
	return nil
}

func runRefreshAll(cmd *cobra.Command, args []string) error {
	app, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	failed := app.Views.RefreshAll(cmd.Context())
	for _, name := range app.Views.Names() {
		p, _ := app.Views.Get(name)
		st := p.State()
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-6s %d rows\n", name, st.Status, len(st.Rows))
	}
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for n := range failed {
			names = append(names, n)
		}
		sort.Strings(names)
		return fmt.Errorf("%d view(s) failed: %v", len(failed), names)
	}
	return nil
}
