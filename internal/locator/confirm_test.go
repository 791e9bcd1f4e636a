package locator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
)

func dialogNode(n dom.Node) dom.Node {
	n.Region = dom.RegionDialog
	return n
}

func TestFormatChoiceWithoutDialog(t *testing.T) {
	page := newFakePage([]dom.Node{button(1, 0, "Export")})

	choose, err := NewFormatChooser(page, 4, 0).FormatChoice(context.Background())
	require.NoError(t, err)
	assert.Nil(t, choose)
}

func TestFormatChoicePrefersCSVAndConfirms(t *testing.T) {
	page := newFakePage([]dom.Node{
		dialogNode(dom.Node{Ref: 1, Tag: "div", Role: "dialog", Visible: true}),
		dialogNode(dom.Node{Ref: 2, Parent: 1, Tag: "label", Text: "Excel", Clickable: true, Visible: true}),
		dialogNode(dom.Node{Ref: 3, Parent: 1, Tag: "label", Text: "CSV", Clickable: true, Visible: true}),
		dialogNode(button(4, 1, "Export")),
		button(5, 0, "Download"),
	})

	choose, err := NewFormatChooser(page, 4, 0).FormatChoice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, choose)
	assert.Empty(t, page.clicks, "inspecting the dialog does not click")

	require.NoError(t, choose(context.Background()))
	assert.Equal(t, []int{3, 4}, page.clicks)
}

func TestFormatChoiceSingleButton(t *testing.T) {
	page := newFakePage([]dom.Node{
		dialogNode(dom.Node{Ref: 1, Tag: "div", Role: "dialog", Visible: true}),
		dialogNode(button(2, 1, "Cancel")),
		dialogNode(button(3, 1, "Export to Excel")),
	})

	choose, err := NewFormatChooser(page, 4, 0).FormatChoice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, choose)
	require.NoError(t, choose(context.Background()))
	assert.Equal(t, []int{3}, page.clicks, "a button choice needs no separate confirmation")
}

func TestFormatChoiceConfirmOnly(t *testing.T) {
	page := newFakePage([]dom.Node{
		dialogNode(dom.Node{Ref: 1, Tag: "div", Role: "dialog", Visible: true}),
		dialogNode(button(2, 1, "ยืนยัน")),
	})

	choose, err := NewFormatChooser(page, 4, 0).FormatChoice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, choose)
	require.NoError(t, choose(context.Background()))
	assert.Equal(t, []int{2}, page.clicks)
}

func TestFormatChoiceNothingToPress(t *testing.T) {
	page := newFakePage([]dom.Node{
		dialogNode(dom.Node{Ref: 1, Tag: "div", Role: "dialog", Visible: true}),
		dialogNode(button(2, 1, "Cancel")),
	})

	choose, err := NewFormatChooser(page, 4, 0).FormatChoice(context.Background())
	require.NoError(t, err)
	assert.Nil(t, choose)
}
