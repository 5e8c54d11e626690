package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"callmap/internal/engine/graph"
	"callmap/internal/engine/symbols"
	"callmap/internal/output"
)

var (
	flagMaxDepth int
	flagPathEmit string

	flagKinds      string
	flagReverse    bool
	flagTreeDepth  int
	flagPathsDepth int
	flagPathsLimit int
)

var callersCmd = &cobra.Command{
	Use:   "callers <symbol> [roots...]",
	Short: "List the direct callers of a symbol",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args[1:])
		if err != nil {
			return err
		}
		callers, err := g.Callers(args[0])
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), callers)
	},
}

var calleesCmd = &cobra.Command{
	Use:   "callees <symbol> [roots...]",
	Short: "List the direct callees of a symbol",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args[1:])
		if err != nil {
			return err
		}
		callees, err := g.Callees(args[0])
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), callees)
	},
}

var reachCmd = &cobra.Command{
	Use:   "reach <entry> [target]",
	Short: "List everything reachable from entry, or test whether target is reachable",
	Long:  "With one argument, prints every symbol transitively called from entry. With two, reports whether target is reachable. Roots come from the config.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), nil)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			set, err := g.ReachableFrom(args[0])
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), set)
		}
		ok, err := g.Reachable(args[0], args[1])
		if err != nil {
			return err
		}
		if flagFormat == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]any{"entry": args[0], "target": args[1], "reachable": ok})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
		return err
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Print the shortest call chain between two symbols",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), nil)
		if err != nil {
			return err
		}
		path, found, err := g.ShortestPath(args[0], args[1], flagMaxDepth)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no call chain from %s to %s", args[0], args[1])
		}
		if flagPathEmit == "dot" {
			gen := output.NewDOTGenerator(g)
			gen.SetHighlight(path)
			dot, err := gen.Generate()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), dot)
			return err
		}
		return printList(cmd.OutOrStdout(), path)
	},
}

var findCmd = &cobra.Command{
	Use:   "find <pattern> [roots...]",
	Short: "Search symbols by name or glob pattern",
	Long:  "Matches qualified names case-insensitively. Patterns with *, ?, [ or { are globs over the whole name; anything else matches as a substring.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args[1:])
		if err != nil {
			return err
		}
		nodes, err := g.FindSymbols(args[0], parseKinds(flagKinds)...)
		if err != nil {
			return err
		}
		type match struct {
			QualifiedName string             `json:"qualified_name"`
			Kind          symbols.Kind       `json:"kind"`
			Visibility    symbols.Visibility `json:"visibility"`
			Path          string             `json:"path,omitempty"`
			Line          int                `json:"line,omitempty"`
		}
		matches := make([]match, 0, len(nodes))
		for _, n := range nodes {
			matches = append(matches, match{n.QualifiedName, n.Kind, n.Visibility, n.Location.File, n.Location.Line})
		}
		if flagFormat == "json" {
			return printJSON(cmd.OutOrStdout(), matches)
		}
		for _, m := range matches {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.QualifiedName, m.Kind); err != nil {
				return err
			}
		}
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree <symbol> [roots...]",
	Short: "Print callees (or callers with --reverse) layered by call distance",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args[1:])
		if err != nil {
			return err
		}
		var levels [][]string
		if flagReverse {
			levels, err = g.CallerTree(args[0], flagTreeDepth)
		} else {
			levels, err = g.CalleeTree(args[0], flagTreeDepth)
		}
		if err != nil {
			return err
		}
		if flagFormat == "json" {
			return printJSON(cmd.OutOrStdout(), levels)
		}
		for depth, level := range levels {
			for _, name := range level {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", strings.Repeat("  ", depth), name); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

var pathsCmd = &cobra.Command{
	Use:   "paths <from> <to>",
	Short: "Print every simple call chain between two symbols",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), nil)
		if err != nil {
			return err
		}
		paths, err := g.AllPaths(args[0], args[1], flagPathsDepth, flagPathsLimit)
		if err != nil {
			return err
		}
		if flagFormat == "json" {
			if paths == nil {
				paths = [][]string{}
			}
			return printJSON(cmd.OutOrStdout(), paths)
		}
		if len(paths) == 0 {
			return fmt.Errorf("no call chain from %s to %s", args[0], args[1])
		}
		for _, path := range paths {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(path, " -> ")); err != nil {
				return err
			}
		}
		return nil
	},
}

var surfaceCmd = &cobra.Command{
	Use:   "surface [roots...]",
	Short: "List public symbols with their external caller counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args)
		if err != nil {
			return err
		}
		entries := g.PublicSurface()
		if flagFormat == "json" {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		tsv, err := output.NewTSVGenerator(g).GenerateSurface(entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), tsv)
		return err
	},
}

var unreferencedCmd = &cobra.Command{
	Use:   "unreferenced [roots...]",
	Short: "List symbols that nothing in the analyzed sources calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), g.Unreferenced())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [roots...]",
	Short: "Print graph size and resolution counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context(), args)
		if err != nil {
			return err
		}
		s := g.Stats()
		if flagFormat == "json" {
			return printJSON(cmd.OutOrStdout(), s)
		}
		return printStats(cmd.OutOrStdout(), s)
	},
}

func init() {
	pathCmd.Flags().IntVar(&flagMaxDepth, "max-depth", 0, "maximum chain length in calls (0 = unbounded)")
	pathCmd.Flags().StringVar(&flagPathEmit, "emit", "text", "text|dot (dot highlights the chain in the full graph)")
	findCmd.Flags().StringVar(&flagKinds, "kind", "", "comma-separated kinds to keep: module,class,function,method")
	treeCmd.Flags().BoolVar(&flagReverse, "reverse", false, "layer callers instead of callees")
	treeCmd.Flags().IntVar(&flagTreeDepth, "depth", 0, "number of layers below the symbol (0 = 5)")
	pathsCmd.Flags().IntVar(&flagPathsDepth, "max-depth", 0, "maximum chain length in calls (0 = 5)")
	pathsCmd.Flags().IntVar(&flagPathsLimit, "limit", 0, "maximum number of chains (0 = 100)")
}

func parseKinds(value string) []symbols.Kind {
	var kinds []symbols.Kind
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, symbols.Kind(strings.ToLower(part)))
		}
	}
	return kinds
}

func printList(w io.Writer, items []string) error {
	if flagFormat == "json" {
		if items == nil {
			items = []string{}
		}
		return printJSON(w, items)
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, item); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(w io.Writer, s graph.Stats) error {
	_, err := fmt.Fprintf(w, "modules:     %d\nsymbols:     %d\nedges:       %d\ncalls:       %d\nexternal:    %d\nunresolved:  %d\n",
		s.Modules, s.Symbols, s.Edges, s.Calls, s.ExternalCalls, s.UnresolvedCalls)
	return err
}
