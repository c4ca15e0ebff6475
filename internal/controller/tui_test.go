package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "rie.dev/pkg/rie/internal/model"
)

func numberedContent(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %02d\n", i)
	}

	return b.String()
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, pm pagerModel, keys ...tea.KeyMsg) pagerModel {
	t.Helper()

	for _, k := range keys {
		next, _ := pm.Update(k)

		var ok bool
		pm, ok = next.(pagerModel)
		require.True(t, ok)
	}

	return pm
}

func TestPagerModel_NeedsPagination(t *testing.T) {
	pm := newPagerModel("Entrypoints", numberedContent(20))
	assert.False(t, pm.needsPagination(), "unknown height shows everything")

	pm.height = 30
	assert.False(t, pm.needsPagination())

	pm.height = 10
	assert.True(t, pm.needsPagination())
	assert.Equal(t, 4, pm.linesPerPage())
	assert.Equal(t, 16, pm.maxOffset())
}

func TestPagerModel_Navigation(t *testing.T) {
	pm := newPagerModel("Entrypoints", numberedContent(20))
	pm.height = 10

	pm = press(t, pm, runeKey("j"), runeKey("j"))
	assert.Equal(t, 2, pm.offset)

	pm = press(t, pm, runeKey("k"))
	assert.Equal(t, 1, pm.offset)

	pm = press(t, pm, runeKey("G"))
	assert.Equal(t, 16, pm.offset)

	pm = press(t, pm, runeKey("j"))
	assert.Equal(t, 16, pm.offset, "offset is clamped at the end")

	pm = press(t, pm, runeKey("u"))
	assert.Equal(t, 12, pm.offset)

	pm = press(t, pm, runeKey("g"))
	assert.Equal(t, 0, pm.offset)

	pm = press(t, pm, tea.KeyMsg{Type: tea.KeyPgDown})
	assert.Equal(t, 4, pm.offset)

	pm = press(t, pm, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyUp},
		tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, pm.offset, "offset is clamped at the start")
}

func TestPagerModel_Quit(t *testing.T) {
	pm := newPagerModel("Ledger", "x\n")

	for _, k := range []tea.KeyMsg{runeKey("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, cmd := pm.Update(k)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestPagerModel_WindowSize(t *testing.T) {
	next, cmd := newPagerModel("Ledger", "x\n").Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Nil(t, cmd)

	pm := next.(pagerModel)
	assert.Equal(t, 80, pm.width)
	assert.Equal(t, 24, pm.height)
}

func TestPagerModel_View(t *testing.T) {
	pm := newPagerModel("Entrypoints", numberedContent(20))
	pm.height = 10
	pm.offset = 3

	view := pm.View()

	assert.Contains(t, view, "rie - Entrypoints")
	assert.Contains(t, view, "line 04")
	assert.Contains(t, view, "line 07")
	assert.NotContains(t, view, "line 03")
	assert.NotContains(t, view, "line 08")
	assert.Contains(t, view, "lines 4-7 of 20")

	pm.height = 0
	full := pm.View()

	assert.Contains(t, full, "line 01")
	assert.Contains(t, full, "line 20")
	assert.NotContains(t, full, "lines ")
}

func TestProgressModel_Stages(t *testing.T) {
	pm := newProgressModel()

	next, _ := pm.Update(stageMsg{stage: "inventory", detail: "/srv/repo"})
	next, _ = next.Update(stageMsg{stage: "evidence", detail: "static imports"})

	view := next.View()

	assert.Contains(t, view, "inventory")
	assert.Contains(t, view, "evidence")
	assert.Contains(t, view, "static imports")
	assert.NotContains(t, view, "/srv/repo", "completed stages drop their detail")

	_, cmd := next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
}

func TestTUI_DisplayWithoutTerminal(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer

	ui := NewTUI(&buf)
	require.NoError(t, ui.Start(ctx, WithActionMode()))

	require.NoError(t, ui.DisplayActionReport(ctx, m.ActionReport{Kind: m.LedgerMove}))
	assert.Contains(t, buf.String(), "rie - Ledger")
	assert.Contains(t, buf.String(), "Quarantine: 0 files")

	buf.Reset()
	require.NoError(t, ui.DisplayEntrypoints(ctx, nil, m.Triangulation{}))
	assert.Contains(t, buf.String(), "No entrypoint candidates found.")

	// Nothing is running, so neither call blocks.
	ui.Wait(ctx)
	ui.Close(ctx)
}
