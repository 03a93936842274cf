package diagram

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

// Template placeholders replaced by Materialize.
const (
	PlaceholderNodes       = "%<<DEFINE-NODES>>"
	PlaceholderHubs        = "%<<DEFINE-HUBS>>"
	PlaceholderConnections = "%<<DEFINE-CONNECTIONS>>"
)

// DefaultTemplate is the built-in family diagram document.
//
//go:embed templates/template-family.tex
var DefaultTemplate string

const nodeTemplate = `\node[draw=<[color]>!70!white, fill=white, line width=0.1cm, minimum width=4cm, minimum height=9cm, path picture={
\node [draw=<[color]>!10!white, fill=<[color]>!10!white, rounded corners=0, text width=3.6cm, inner sep=0.2cm, minimum width=4cm, minimum height=3cm, anchor=north] at (0cm,-1.5cm) {\begin{dynminipage}<[caption]>\end{dynminipage}};
\fill [fill overzoom image={<[image]>}, rounded corners=0] (-2cm,-1.5cm) rectangle (2cm,4.5cm);
}, rectangle, rounded corners=0.2cm] (<[id]>) at <[pos]> {};
`

var eventSymbols = map[string]string{
	EventBorn:    `\gtrsymBorn`,
	EventMarried: `\gtrsymMarried`,
	EventDied:    `\gtrsymDied`,
}

var texEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// EscapeTeX makes free text safe to embed in a TeX document.
func EscapeTeX(s string) string { return texEscaper.Replace(s) }

func cm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "cm"
}

// CaptionTeX renders a caption as the body of a dynminipage.
func CaptionTeX(c Caption) string {
	var b strings.Builder
	b.WriteString(`\textbf{` + EscapeTeX(c.Name) + `}`)
	for _, e := range c.Events {
		b.WriteString(`\\` + eventSymbols[e.Kind])
		if e.Date != "" {
			b.WriteString("~" + EscapeTeX(e.Date))
		}
		if e.Place != "" {
			b.WriteString(" in " + EscapeTeX(e.Place))
		}
	}
	if c.Profession != "" {
		b.WriteString(`\\\textit{` + EscapeTeX(c.Profession) + `}`)
	}
	return b.String()
}

// NodeTeX renders one node definition.
func NodeTeX(n Node, theme Theme) string {
	return strings.NewReplacer(
		"<[color]>", ColorFor(n.Sex, theme),
		"<[caption]>", CaptionTeX(n.Caption),
		"<[image]>", theme.ImageDir+n.Image,
		"<[id]>", n.Name,
		"<[pos]>", fmt.Sprintf("(%s, %s)", cm(n.Position.X), cm(n.Position.Y)),
	).Replace(nodeTemplate)
}

// HubTeX renders one hub coordinate.
func HubTeX(h Hub) string {
	return fmt.Sprintf(`\coordinate (%s) at (%s, %s);`, h.Name, cm(h.Position.X), cm(h.Position.Y)) + "\n"
}

// ConnectionsTeX renders all connectors. Within each hub group every outline
// stroke is drawn before the first line stroke.
func ConnectionsTeX(connectors []Connector, theme Theme) string {
	var b strings.Builder
	for start := 0; start < len(connectors); {
		end := start
		for end < len(connectors) && connectors[end].Hub == connectors[start].Hub {
			end++
		}
		group := connectors[start:end]
		for _, c := range group {
			fmt.Fprintf(&b, `\draw[line width=%s, %s] (%s)|-(%s);`+"\n", theme.OutlineWidth, theme.OutlineColor, c.From, c.Hub)
		}
		for _, c := range group {
			fmt.Fprintf(&b, `\draw[line width=%s, %s] (%s)|-(%s);`+"\n", theme.LineWidth, theme.LineColor, c.From, c.Hub)
		}
		start = end
	}
	return b.String()
}

// Materialize substitutes the layout into template. Every placeholder must be
// present.
func Materialize(result *Result, template string, theme Theme) (string, error) {
	for _, p := range []string{PlaceholderNodes, PlaceholderHubs, PlaceholderConnections} {
		if !strings.Contains(template, p) {
			return "", fmt.Errorf("diagram template is missing placeholder %s", p)
		}
	}

	var nodes, hubs strings.Builder
	for _, n := range result.Nodes {
		nodes.WriteString(NodeTeX(n, theme))
	}
	for _, h := range result.Hubs {
		hubs.WriteString(HubTeX(h))
	}

	return strings.NewReplacer(
		PlaceholderNodes, nodes.String(),
		PlaceholderHubs, hubs.String(),
		PlaceholderConnections, ConnectionsTeX(result.Connectors, theme),
	).Replace(template), nil
}
