package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/graph"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "pipecanvas",
		Short: "pipecanvas: visual pipeline editor backend",
		Long: `pipecanvas stores and checks processing pipelines built from step
containers of operators.

A pipeline definition is a list of ordered steps, each holding operator
references, plus the data-flow edges between operator ports. Definitions
can be read and written as JSON, YAML or DOT.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(serveCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(expandCmd())
	root.AddCommand(convertCmd())
	root.AddCommand(manifestsCmd())
	return root
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	var manifestDir string

	cmd := &cobra.Command{
		Use:   "lint <pipeline>",
		Short: "Check a pipeline definition for structural and port problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := definition.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pipeline: %w", err)
			}
			reg, err := loadRegistry(manifestDir)
			if err != nil {
				return err
			}
			if issues := definition.Lint(d, reg); len(issues) > 0 {
				return &definition.StructuralError{Issues: issues}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s is valid (%d steps, %d operators, %d edges)\n",
				args[0], len(d.Steps), d.OperatorCount(), len(d.Edges))
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestDir, "manifests", "", "directory of YAML operator manifests merged over the built-ins")
	return cmd
}

// ─── expand ───────────────────────────────────────────────────────────────────

type expandOutput struct {
	Graph    *graph.Graph       `json:"graph"`
	Boundary []definition.Edge  `json:"boundary"`
	Warnings []definition.Issue `json:"warnings"`
}

func expandCmd() *cobra.Command {
	var (
		manifestDir string
		collapse    string
	)

	cmd := &cobra.Command{
		Use:   "expand <pipeline>",
		Short: "Print the visual graph of a pipeline as JSON",
		Long: `expand lays a pipeline out as step containers and operator nodes and
prints the result as JSON. With --collapse the graph is turned straight
back into a definition instead, which shows what a save would store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := definition.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pipeline: %w", err)
			}
			reg, err := loadRegistry(manifestDir)
			if err != nil {
				return err
			}
			p := graph.Expand(d, reg)
			for _, w := range p.Warnings {
				slog.Warn("expand", "kind", w.Kind, "subject", w.Subject, "message", w.Message)
			}

			if collapse != "" {
				f, err := definition.ParseFormat(collapse)
				if err != nil {
					return err
				}
				out := graph.Collapse(p.Graph)
				for _, is := range graph.Reattach(out, p.Boundary) {
					slog.Warn("collapse", "kind", is.Kind, "subject", is.Subject, "message", is.Message)
				}
				data, err := definition.Encode(out, f)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(expandOutput{Graph: p.Graph, Boundary: p.Boundary, Warnings: p.Warnings})
		},
	}
	cmd.Flags().StringVar(&manifestDir, "manifests", "", "directory of YAML operator manifests merged over the built-ins")
	cmd.Flags().StringVar(&collapse, "collapse", "", "collapse the graph back and print it as json, yaml or dot")
	return cmd
}

// ─── convert ──────────────────────────────────────────────────────────────────

func convertCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "convert <pipeline>",
		Short: "Re-encode a pipeline definition as JSON, YAML or DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := definition.ParseFormat(to)
			if err != nil {
				return err
			}
			d, err := definition.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pipeline: %w", err)
			}
			if err := definition.ValidateErr(d); err != nil {
				return fmt.Errorf("invalid pipeline: %w", err)
			}
			data, err := definition.Encode(d, f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", "json", "output format: json, yaml or dot")
	return cmd
}

// ─── manifests ────────────────────────────────────────────────────────────────

func manifestsCmd() *cobra.Command {
	var manifestDir string

	cmd := &cobra.Command{
		Use:   "manifests",
		Short: "List the registered operators and their ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadRegistry(manifestDir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tKIND\tINPUTS\tOUTPUTS")
			for _, m := range reg.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Key, m.Kind, portList(m.InputPorts), portList(m.OutputPorts))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&manifestDir, "manifests", "", "directory of YAML operator manifests merged over the built-ins")
	return cmd
}

func portList(ports []manifest.Port) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		s := p.Key + ":" + string(p.Type)
		if p.Required {
			s += "*"
		}
		parts[i] = s
	}
	return strings.Join(parts, ",")
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// manifestSource returns the built-in catalogue, overlaid with dir if set.
func manifestSource(dir string) manifest.Source {
	if dir == "" {
		return manifest.Static(manifest.Builtins()...)
	}
	return manifest.Dir(dir, manifest.Builtins())
}

func loadRegistry(dir string) (*manifest.Registry, error) {
	ms, err := manifestSource(dir).Manifests(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load manifests: %w", err)
	}
	return manifest.NewRegistry(ms...), nil
}

// initLogger installs the default slog handler.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q: use debug, info, warn or error", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[pipecanvas] interrupted, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
