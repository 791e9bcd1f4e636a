package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// State is a browser storage state in the layout Playwright writes with
// context.storageState(), so blobs captured by either tool are interchangeable.
type State struct {
	Cookies []Cookie        `json:"cookies"`
	Origins []OriginStorage `json:"origins"`
}

// Cookie is one persisted cookie. Expires is unix seconds, -1 for session
// cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginStorage holds the localStorage entries of one origin.
type OriginStorage struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Parse decodes a storage state document. A document without cookies and
// without localStorage is rejected since it cannot authenticate anything.
func Parse(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse storage state: %w", err)
	}
	if len(s.Cookies) == 0 && len(s.Origins) == 0 {
		return nil, fmt.Errorf("parse storage state: no cookies or origins")
	}
	return &s, nil
}

// Encode returns the indented JSON form of s.
func (s *State) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (s *State) cookieParams() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			sec := int64(c.Expires)
			nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
			exp := cdp.TimeSinceEpoch(time.Unix(sec, nsec))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// Apply installs the cookies of s into the browser behind ctx.
func (s *State) Apply(ctx context.Context) error {
	if len(s.Cookies) == 0 {
		return nil
	}
	params := s.cookieParams()
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.SetCookies(params).Do(ctx); err != nil {
			return fmt.Errorf("set %d cookies: %w", len(params), err)
		}
		return nil
	}))
}

const seedScript = `(function (origins) {
  try {
    var items = origins[location.origin];
    if (!items || sessionStorage.getItem('__exporterSeeded')) return;
    for (var i = 0; i < items.length; i++) {
      localStorage.setItem(items[i].name, items[i].value);
    }
    sessionStorage.setItem('__exporterSeeded', '1');
  } catch (e) {}
})(%s);`

// InitScript returns a script that seeds localStorage for the matching
// origin once per tab session. It is empty when s has no origins.
func (s *State) InitScript() string {
	if len(s.Origins) == 0 {
		return ""
	}
	byOrigin := make(map[string][]NameValue, len(s.Origins))
	for _, o := range s.Origins {
		byOrigin[strings.TrimSuffix(o.Origin, "/")] = o.LocalStorage
	}
	data, err := json.Marshal(byOrigin)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(seedScript, data)
}

const localStorageJS = `(function () {
  var out = { origin: location.origin, items: [] };
  try {
    for (var i = 0; i < localStorage.length; i++) {
      var k = localStorage.key(i);
      out.items.push({ name: k, value: localStorage.getItem(k) });
    }
  } catch (e) {}
  return out;
})()`

// Capture reads every cookie of the browser and the localStorage of the
// current page's origin.
func Capture(ctx context.Context) (*State, error) {
	var cookies []*network.Cookie
	var local struct {
		Origin string      `json:"origin"`
		Items  []NameValue `json:"items"`
	}
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) (err error) {
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(localStorageJS, &local),
	)
	if err != nil {
		return nil, fmt.Errorf("capture storage state: %w", err)
	}

	s := &State{Cookies: make([]Cookie, 0, len(cookies)), Origins: []OriginStorage{}}
	for _, c := range cookies {
		exp := c.Expires
		if c.Session {
			exp = -1
		}
		s.Cookies = append(s.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  exp,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	if local.Origin != "" && local.Origin != "null" && len(local.Items) > 0 {
		s.Origins = append(s.Origins, OriginStorage{Origin: local.Origin, LocalStorage: local.Items})
	}
	return s, nil
}
