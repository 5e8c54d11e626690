package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"callmap/internal/core/app"
	"callmap/internal/engine/graph"
	"callmap/internal/output"
	"callmap/internal/shared/util"
)

var (
	flagEmit    string
	flagOut     string
	flagStore   bool
	flagFromRun string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [roots...]",
	Short: "Build the call graph and export it",
	Long:  "Analyzes every Python module under the given roots (or paths.roots from the config) and writes the graph as json, dot, mermaid or tsv.",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagEmit, "emit", "json", "export format: json|dot|mermaid|tsv")
	analyzeCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the export to a file instead of stdout")
	analyzeCmd.Flags().BoolVar(&flagStore, "store", false, "save the run in the snapshot store (store.path)")

	for _, cmd := range []*cobra.Command{callersCmd, calleesCmd, reachCmd, pathCmd, pathsCmd, treeCmd, findCmd, surfaceCmd, unreferencedCmd, statsCmd} {
		cmd.Flags().StringVar(&flagFromRun, "from-run", "", "query a saved run (\"latest\" or a run ID) instead of analyzing")
	}
}

// analyze runs a full analysis over args (or the configured roots).
func analyze(ctx context.Context, roots []string) (*app.Analyzer, *app.Report, error) {
	if len(roots) > 0 {
		cfg.Paths.Roots = roots
	}
	if flagStore {
		cfg.Store.Enabled = true
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	report, err := a.Run(ctx)
	if err != nil {
		_ = a.Close()
		return nil, report, err
	}
	return a, report, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, report, err := analyze(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer a.Close()

	var rendered string
	switch flagEmit {
	case "json":
		exp := a.Export()
		exp.RunID = report.RunID
		var b strings.Builder
		if err := exp.WriteJSON(&b); err != nil {
			return err
		}
		rendered = b.String()
	case "dot":
		rendered, err = output.NewDOTGenerator(a.Graph()).Generate()
	case "mermaid":
		rendered, err = output.NewMermaidGenerator(a.Graph()).Generate()
	case "tsv":
		rendered, err = output.NewTSVGenerator(a.Graph()).Generate()
	default:
		return fmt.Errorf("invalid --emit %q: must be json, dot, mermaid or tsv", flagEmit)
	}
	if err != nil {
		return err
	}

	if flagOut == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
		return err
	}
	if err := util.WriteFileWithDirs(filepath.Clean(flagOut), []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flagOut, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d modules, %d edges, %d diagnostics)\n",
		flagOut, report.Modules, report.Stats.Edges, len(report.Diagnostics))
	if report.RunID != "" {
		fmt.Fprintf(os.Stderr, "Saved run %s\n", report.RunID)
	}
	return nil
}

// loadGraph returns the graph to query: a saved run when --from-run is set,
// otherwise a fresh analysis of roots.
func loadGraph(ctx context.Context, roots []string) (*graph.CallGraph, error) {
	if flagFromRun == "" {
		a, _, err := analyze(ctx, roots)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.Graph(), nil
	}

	store, err := graph.OpenSnapshotStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runID := flagFromRun
	if runID == "latest" {
		if runID, err = store.LatestRunID(ctx); err != nil {
			return nil, err
		}
	}
	exp, err := store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return graph.FromExport(exp)
}
