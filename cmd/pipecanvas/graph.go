package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <pipeline>",
		Short: "Print a human-readable summary of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := definition.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pipeline: %w", err)
			}

			switch strings.ToLower(format) {
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), definition.FormatDOTString(d))
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(d))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// configString renders overrides as sorted key=value pairs.
func configString(cfg map[string]any) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + truncate(fmt.Sprint(cfg[k]), 60)
	}
	return strings.Join(parts, " ")
}

// renderText produces the human-readable text summary: steps with their
// operators in stored order, execution levels, then edges.
func renderText(d *definition.Definition) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Pipeline  (%d steps, %d operators, %d edges)\n",
		len(d.Steps), d.OperatorCount(), len(d.Edges))

	maxIDLen := 4
	for _, s := range d.Steps {
		for _, op := range s.Operators {
			if len(op.ID) > maxIDLen {
				maxIDLen = len(op.ID)
			}
		}
	}

	fmt.Fprintf(&sb, "\nSteps:\n")
	for _, s := range d.Steps {
		label := s.Label
		if label == "" {
			label = s.Key
		}
		fmt.Fprintf(&sb, "  [%s] %s\n", s.Key, label)
		for _, op := range s.Operators {
			fmt.Fprintf(&sb, "    %-*s  %-20s  %s\n", maxIDLen, op.ID, op.OperatorKey, configString(op.ConfigOverrides))
		}
	}

	fmt.Fprintf(&sb, "\nLevels:\n")
	if levels, err := definition.Levels(d); err != nil {
		fmt.Fprintf(&sb, "  unavailable: %v\n", err)
	} else {
		for i, ids := range levels {
			fmt.Fprintf(&sb, "  %d: %s\n", i, strings.Join(ids, ", "))
		}
	}

	fmt.Fprintf(&sb, "\nEdges:\n")
	maxFromLen := 4
	for _, e := range d.Edges {
		if n := len(e.SourceOp) + 1 + len(e.SourcePort); n > maxFromLen {
			maxFromLen = n
		}
	}
	for _, e := range d.Edges {
		from := e.SourceOp + "." + e.SourcePort
		fmt.Fprintf(&sb, "  %-*s  →  %s.%s  [%s]\n", maxFromLen, from, e.TargetOp, e.TargetPort, e.ID)
	}

	return sb.String()
}
