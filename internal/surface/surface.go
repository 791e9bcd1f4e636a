// Package surface lists the pages an export is attempted from, in order.
package surface

import (
	"net/url"
	"path"
	"strings"
)

// Surface is a page that may offer an export control.
type Surface struct {
	Name string
	URL  string
	// ReadySelectors are CSS selectors of toolbar-like elements; the page
	// counts as ready once any of them is visible.
	ReadySelectors []string
}

// DefaultReadySelectors match the toolbars of common admin UI kits.
var DefaultReadySelectors = []string{
	`[role="toolbar"]`,
	`md-toolbar`,
	`.mat-toolbar`,
	`.toolbar`,
	`[data-testid*="toolbar"]`,
	`main button`,
	`header button`,
}

const dashboard = "https://r.loyverse.com/dashboard/#/"

// Defaults are tried in order: the price list, the item list, then the
// inventory-by-item report.
var Defaults = []Surface{
	{Name: "price-list", URL: dashboard + "goods/price", ReadySelectors: DefaultReadySelectors},
	{Name: "items", URL: dashboard + "goods/items", ReadySelectors: DefaultReadySelectors},
	{Name: "inventory-by-items", URL: dashboard + "inventory_by_items", ReadySelectors: DefaultReadySelectors},
}

// Enumerate returns the surfaces to try. Each override is "url" or
// "name=url"; entries that are not absolute http(s) URLs are dropped. When
// no override survives, the defaults are returned.
func Enumerate(overrides []string) []Surface {
	var out []Surface
	for _, o := range overrides {
		if s, ok := parse(o); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = make([]Surface, len(Defaults))
		copy(out, Defaults)
	}
	return out
}

func parse(entry string) (Surface, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return Surface{}, false
	}

	var name string
	if n, rest, ok := strings.Cut(entry, "="); ok && !strings.ContainsAny(n, ":/?#") {
		name, entry = strings.TrimSpace(n), strings.TrimSpace(rest)
	}

	u, err := url.Parse(entry)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Surface{}, false
	}
	if name == "" {
		name = nameFor(u)
	}
	return Surface{Name: name, URL: u.String(), ReadySelectors: DefaultReadySelectors}, true
}

// nameFor derives a short name from the hash route or the path.
func nameFor(u *url.URL) string {
	route := strings.Trim(u.Fragment, "/")
	if route == "" {
		route = strings.Trim(u.Path, "/")
	}
	if route == "" {
		return u.Host
	}
	return strings.ReplaceAll(path.Base(route), "_", "-")
}
