package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeTeX(t *testing.T) {
	assert.Equal(t, `50\% \& \$5\_a \#1`, EscapeTeX("50% & $5_a #1"))
	assert.Equal(t, `\textbackslash{}x\{y\}`, EscapeTeX(`\x{y}`))
	assert.Equal(t, "Müller", EscapeTeX("Müller"))
}

func TestCaptionTeX(t *testing.T) {
	got := CaptionTeX(Caption{
		Name: "Anna & Otto",
		Events: []Event{
			{Kind: EventBorn, Date: "3.4.1901", Place: "Köln"},
			{Kind: EventDied, Place: "Bonn"},
		},
		Profession: "Teacher",
	})
	assert.Equal(t, `\textbf{Anna \& Otto}\\\gtrsymBorn~3.4.1901 in Köln\\\gtrsymDied in Bonn\\\textit{Teacher}`, got)
}

func TestHubTeX(t *testing.T) {
	assert.Equal(t, "\\coordinate (hub-a-b) at (10cm, 6.5cm);\n", HubTeX(Hub{Name: "hub-a-b", Position: Point{10, 6.5}}))
}

func TestNodeTeX(t *testing.T) {
	got := NodeTeX(Node{
		Name:     "id-s",
		Position: Point{7.5, 13},
		Sex:      "male",
		Image:    "s.jpg",
		Caption:  Caption{Name: "S"},
	}, DefaultTheme())

	assert.Contains(t, got, `draw=blue!70!white`)
	assert.Contains(t, got, `{../relatives/images/s.jpg}`)
	assert.Contains(t, got, `(id-s) at (7.5cm, 13cm)`)
	assert.Contains(t, got, `\textbf{S}`)
	assert.NotContains(t, got, "<[")
}

func TestConnectionsOutlineBeforeLine(t *testing.T) {
	got := ConnectionsTeX([]Connector{
		{From: "id-a", Hub: "h1"},
		{From: "id-b", Hub: "h1"},
		{From: "id-c", Hub: "h2"},
	}, DefaultTheme())

	want := strings.Join([]string{
		`\draw[line width=0.4cm, white] (id-a)|-(h1);`,
		`\draw[line width=0.4cm, white] (id-b)|-(h1);`,
		`\draw[line width=0.2cm, black] (id-a)|-(h1);`,
		`\draw[line width=0.2cm, black] (id-b)|-(h1);`,
		`\draw[line width=0.4cm, white] (id-c)|-(h2);`,
		`\draw[line width=0.2cm, black] (id-c)|-(h2);`,
	}, "\n") + "\n"
	assert.Equal(t, want, got)
}

func TestMaterialize(t *testing.T) {
	res, err := Layout("s", familyFixture())
	require.NoError(t, err)

	tex, err := Materialize(res, DefaultTemplate, DefaultTheme())
	require.NoError(t, err)
	assert.NotContains(t, tex, PlaceholderNodes)
	assert.NotContains(t, tex, PlaceholderHubs)
	assert.NotContains(t, tex, PlaceholderConnections)
	assert.Equal(t, len(res.Nodes), strings.Count(tex, `\node[draw=`))
	assert.Equal(t, len(res.Hubs), strings.Count(tex, `\coordinate (`))
	assert.Equal(t, 2*len(res.Connectors), strings.Count(tex, `\draw[`))

	nodes := strings.Index(tex, `\node[draw=`)
	hubs := strings.Index(tex, `\coordinate (`)
	lines := strings.Index(tex, `\draw[`)
	assert.True(t, nodes < hubs && hubs < lines, "nodes, hubs and connections keep template order")
}

func TestMaterializeMissingPlaceholder(t *testing.T) {
	res, err := Layout("s", familyFixture())
	require.NoError(t, err)

	template := strings.Replace(DefaultTemplate, PlaceholderHubs, "", 1)
	_, err = Materialize(res, template, DefaultTheme())
	assert.ErrorContains(t, err, PlaceholderHubs)
}
