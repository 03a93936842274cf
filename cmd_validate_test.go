package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/services"
)

func TestWriteReportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, &services.Report{Relatives: 2}, "text"))
	assert.Contains(t, buf.String(), "✓ 2 relatives, no problems found")

	buf.Reset()
	report := &services.Report{
		Relatives: 3,
		Failures:  1,
		Warnings:  []repository.Warning{"Failed to read <x.md>", "b is missing a cross-reference to their spouse a"},
	}
	require.NoError(t, writeReport(&buf, report, "text"))
	out := buf.String()
	assert.Contains(t, out, "! Failed to read <x.md>")
	assert.Contains(t, out, "! b is missing a cross-reference to their spouse a")
	assert.Contains(t, out, "3 relatives, 1 unreadable files, 2 warnings")
}

func TestWriteReportStructured(t *testing.T) {
	report := &services.Report{Relatives: 1, Warnings: []repository.Warning{"a contains an empty spouse entry"}}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, report, "json"))
	var fromJSON services.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, *report, fromJSON)

	buf.Reset()
	require.NoError(t, writeReport(&buf, report, "yaml"))
	var fromYAML services.Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, *report, fromYAML)
}

func TestWriteReportUnknownFormat(t *testing.T) {
	err := writeReport(&bytes.Buffer{}, &services.Report{}, "xml")
	assert.ErrorContains(t, err, `unknown format "xml"`)
}
