package locator

import (
	"context"
	"fmt"
	"time"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/dom"
)

// FormatChooser answers the confirmation dialog some exports open before
// delivering anything.
type FormatChooser struct {
	Page    Page
	CSV     Pattern
	Excel   Pattern
	Confirm Pattern
	Climb   int
	Settle  time.Duration
}

// NewFormatChooser returns a chooser over page with the default vocabularies.
func NewFormatChooser(page Page, climb int, settle time.Duration) FormatChooser {
	return FormatChooser{
		Page:    page,
		CSV:     NewPattern(CSVWords...),
		Excel:   NewPattern(ExcelWords...),
		Confirm: NewPattern(ConfirmWords...),
		Climb:   climb,
		Settle:  settle,
	}
}

var selectableRoles = map[string]bool{
	"radio":            true,
	"option":           true,
	"menuitemradio":    true,
	"checkbox":         true,
	"menuitemcheckbox": true,
}

// FormatChoice inspects the visible dialog. It returns nil when no dialog
// is open or the dialog offers nothing to press. Otherwise the returned
// action clicks the preferred format (CSV, then Excel) and, when that was
// only a selection, the dialog's confirm button.
func (f FormatChooser) FormatChoice(ctx context.Context) (func(context.Context) error, error) {
	snap, err := f.Page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot dialog: %w", err)
	}
	if !snap.HasRegion(dom.RegionDialog) {
		return nil, nil
	}
	inDialog := dom.InRegion(dom.RegionDialog)

	choice := f.find(snap, f.CSV, inDialog)
	if choice == nil {
		choice = f.find(snap, f.Excel, inDialog)
	}
	if choice == nil {
		confirm := f.find(snap, f.Confirm, inDialog)
		if confirm == nil {
			return nil, nil
		}
		ref := confirm.Ref
		return func(ctx context.Context) error { return f.Page.Click(ctx, ref) }, nil
	}

	ref, selection := choice.Ref, isSelection(choice)
	return func(ctx context.Context) error {
		if err := f.Page.Click(ctx, ref); err != nil {
			return fmt.Errorf("choose format: %w", err)
		}
		if !selection {
			return nil
		}
		if err := pause(ctx, f.Settle); err != nil {
			return err
		}
		after, err := f.Page.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot after format choice: %w", err)
		}
		confirm := f.find(after, f.Confirm, inDialog)
		if confirm == nil {
			return nil
		}
		return f.Page.Click(ctx, confirm.Ref)
	}, nil
}

func (f FormatChooser) find(snap *dom.Snapshot, p Pattern, scope dom.Scope) *dom.Node {
	if n := findSemantic(snap, p, scope); n != nil {
		return n
	}
	return findByText(snap, p, f.Climb, scope)
}

func isSelection(n *dom.Node) bool {
	return selectableRoles[n.Role] || n.Tag == "label" || n.Tag == "input"
}
