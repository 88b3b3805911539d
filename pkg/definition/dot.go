package definition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// DOT layout of a definition:
//
//	digraph pipeline {
//	    subgraph cluster_summarize {
//	        label="Generate Summary"
//	        pos="300,0"
//	        summary [operator_key=summary]
//	        save [operator_key=save_cards config="{\"card_type\":\"flashcard\"}"]
//	    }
//	    summary:summary -> save:items [id=e1]
//	}
//
// Each subgraph is a step (a "cluster_" prefix is stripped from its name).
// Nodes declared outside any subgraph land in the custom step. Nodes without
// operator_key, and the __input__ sentinel, are not operators.

// ParseDOT parses a Graphviz DOT string into a Definition.
func ParseDOT(src string) (*Definition, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// The collector accepts any attribute name; gographviz.Graph would reject
	// operator_key and config.
	c := newDOTCollector()
	if err := gographviz.Analyse(graphAst, c); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	d := &Definition{Steps: []Step{}, Edges: []Edge{}}
	stepIdx := map[string]int{}
	for _, raw := range c.subgraphs {
		attrs := c.subgraphAttrs[raw]
		step := Step{
			Key:       strings.TrimPrefix(unquote(raw), "cluster_"),
			Label:     attrs["label"],
			Operators: []OperatorRef{},
		}
		if pos, ok := attrs["pos"]; ok {
			p, err := parsePos(pos)
			if err != nil {
				return nil, fmt.Errorf("subgraph %s: %w", step.Key, err)
			}
			step.Position = p
		}
		stepIdx[raw] = len(d.Steps)
		d.Steps = append(d.Steps, step)
	}

	var custom []OperatorRef
	for _, id := range c.nodeOrder {
		n := c.nodes[id]
		key := n.attrs["operator_key"]
		if id == InputSentinel || key == "" {
			continue
		}
		op := OperatorRef{ID: id, OperatorKey: key, ConfigOverrides: map[string]any{}}
		if cfg, ok := n.attrs["config"]; ok && cfg != "" {
			if err := json.Unmarshal([]byte(cfg), &op.ConfigOverrides); err != nil {
				return nil, fmt.Errorf("node %q: config: %w", id, err)
			}
		}
		if i, ok := stepIdx[n.parent]; ok {
			d.Steps[i].Operators = append(d.Steps[i].Operators, op)
		} else {
			custom = append(custom, op)
		}
	}
	if len(custom) > 0 {
		d.Steps = append(d.Steps, Step{Key: CustomStepKey, Label: CustomStepLabel, Operators: custom})
	}

	for i, e := range c.edges {
		edge := Edge{
			ID:         e.attrs["id"],
			SourceOp:   e.from,
			SourcePort: e.fromPort,
			TargetOp:   e.to,
			TargetPort: e.toPort,
		}
		if edge.ID == "" {
			edge.ID = "e" + strconv.Itoa(i)
		}
		if edge.SourcePort == "" {
			edge.SourcePort = DefaultSourcePort
		}
		if edge.TargetPort == "" {
			edge.TargetPort = DefaultTargetPort
		}
		d.Edges = append(d.Edges, edge)
	}

	return d, nil
}

// FormatDOTString renders d in the layout ParseDOT reads.
func FormatDOTString(d *Definition) string {
	var sb strings.Builder
	sb.WriteString("digraph pipeline {\n")

	for _, s := range d.Steps {
		fmt.Fprintf(&sb, "    subgraph %s {\n", dotQuote("cluster_"+s.Key))
		if s.Label != "" {
			fmt.Fprintf(&sb, "        label=%s\n", dotQuote(s.Label))
		}
		fmt.Fprintf(&sb, "        pos=%s\n", dotQuote(formatPos(s.Position)))
		for _, op := range s.Operators {
			parts := []string{"operator_key=" + dotQuote(op.OperatorKey)}
			if len(op.ConfigOverrides) > 0 {
				// json.Marshal sorts map keys, so the output is stable.
				if cfg, err := json.Marshal(op.ConfigOverrides); err == nil {
					parts = append(parts, "config="+dotQuote(string(cfg)))
				}
			}
			fmt.Fprintf(&sb, "        %s [%s]\n", dotQuote(op.ID), strings.Join(parts, " "))
		}
		sb.WriteString("    }\n")
	}

	for _, e := range d.Edges {
		fmt.Fprintf(&sb, "    %s:%s -> %s:%s [id=%s]\n",
			dotQuote(e.SourceOp), dotQuote(e.SourcePort),
			dotQuote(e.TargetOp), dotQuote(e.TargetPort),
			dotQuote(e.ID))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

type dotNode struct {
	attrs  map[string]string
	parent string // raw subgraph name, "" for the root graph
}

type rawEdge struct {
	from, fromPort string
	to, toPort     string
	attrs          map[string]string
}

// dotCollector implements gographviz.Interface without attribute validation
// and remembers which subgraph each node was declared in.
type dotCollector struct {
	name          string
	subgraphs     []string
	subgraphAttrs map[string]map[string]string
	nodes         map[string]*dotNode
	nodeOrder     []string
	edges         []rawEdge
	graphAttrs    map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		subgraphAttrs: make(map[string]map[string]string),
		nodes:         make(map[string]*dotNode),
		graphAttrs:    make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = n; return nil }
func (c *dotCollector) String() string         { return unquote(c.name) }

func (c *dotCollector) isRoot(graph string) bool { return graph == c.name || graph == "" }

func (c *dotCollector) subgraph(raw string) map[string]string {
	attrs, ok := c.subgraphAttrs[raw]
	if !ok {
		attrs = make(map[string]string)
		c.subgraphAttrs[raw] = attrs
		c.subgraphs = append(c.subgraphs, raw)
	}
	return attrs
}

func (c *dotCollector) AddNode(parentGraph string, name string, attrs map[string]string) error {
	id := unquote(name)
	n, ok := c.nodes[id]
	if !ok {
		n = &dotNode{attrs: make(map[string]string)}
		c.nodes[id] = n
		c.nodeOrder = append(c.nodeOrder, id)
	}
	for k, v := range attrs {
		n.attrs[k] = unquote(v)
	}
	// The first subgraph a node is declared in owns it.
	if n.parent == "" && !c.isRoot(parentGraph) {
		c.subgraph(parentGraph)
		n.parent = parentGraph
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (c *dotCollector) AddPortEdge(src, srcPort, dst, dstPort string, _ bool, attrs map[string]string) error {
	e := rawEdge{
		from:     unquote(src),
		fromPort: portName(srcPort),
		to:       unquote(dst),
		toPort:   portName(dstPort),
		attrs:    make(map[string]string, len(attrs)),
	}
	for k, v := range attrs {
		e.attrs[k] = unquote(v)
	}
	c.edges = append(c.edges, e)
	return nil
}

func (c *dotCollector) AddAttr(parentGraph string, field, value string) error {
	if c.isRoot(parentGraph) {
		c.graphAttrs[field] = unquote(value)
		return nil
	}
	c.subgraph(parentGraph)[field] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_ string, name string, attrs map[string]string) error {
	sg := c.subgraph(name)
	for k, v := range attrs {
		sg[k] = unquote(v)
	}
	return nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

var unescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`)

// unquote strips surrounding double-quotes from a DOT ID and resolves the
// escapes dotQuote introduces.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return unescaper.Replace(s[1 : len(s)-1])
	}
	return s
}

// portName turns a raw ":port" or ":port:compass" suffix into the port id.
func portName(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), ":")
	if raw == "" {
		return ""
	}
	if raw[0] != '"' {
		if i := strings.IndexByte(raw, ':'); i >= 0 {
			raw = raw[:i]
		}
		return raw
	}
	// Quoted port: cut at the closing quote so a compass suffix is dropped.
	for i := 1; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case '"':
			return unquote(raw[:i+1])
		}
	}
	return unquote(raw)
}

// dotQuote returns the value as a DOT-safe string, quoting if necessary.
func dotQuote(s string) string {
	if s != "" && isPlainID(s) {
		return s
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// isPlainID reports whether s is a bare DOT identifier that is not a keyword.
func isPlainID(s string) bool {
	switch strings.ToLower(s) {
	case "node", "edge", "graph", "digraph", "subgraph", "strict":
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func formatPos(p Position) string {
	return strconv.FormatFloat(p.X, 'g', -1, 64) + "," + strconv.FormatFloat(p.Y, 'g', -1, 64)
}

func parsePos(s string) (Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Position{}, fmt.Errorf("pos %q: want \"x,y\"", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Position{}, fmt.Errorf("pos %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Position{}, fmt.Errorf("pos %q: %w", s, err)
	}
	return Position{X: x, Y: y}, nil
}
