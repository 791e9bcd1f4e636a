package artifact

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrRejected is wrapped by every validation failure.
var ErrRejected = errors.New("payload rejected")

const (
	// minFields is the field count a header and first record must exceed.
	minFields = 1
	// sniffLines bounds how far into the payload document-level tags are searched.
	sniffLines = 20
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	delimiters = []rune{',', ';', '\t'}
)

// documentTags are elements that only appear in a markup document, never in
// a table cell that merely happens to start with '<'.
var documentTags = map[atom.Atom]bool{
	atom.Html:   true,
	atom.Head:   true,
	atom.Body:   true,
	atom.Script: true,
	atom.Meta:   true,
	atom.Title:  true,
	atom.Link:   true,
	atom.Style:  true,
}

// Validate reports whether data looks like a delimited table. It never
// modifies data and gives the same answer for the same bytes.
func Validate(data []byte) error {
	text := string(bytes.TrimPrefix(data, utf8BOM))

	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		return fmt.Errorf("%w: empty payload", ErrRejected)
	}
	if isMarkup(lines) {
		return fmt.Errorf("%w: markup document", ErrRejected)
	}
	if len(lines) < 2 {
		return fmt.Errorf("%w: fewer than two non-empty lines", ErrRejected)
	}
	for _, d := range delimiters {
		if fieldCount(lines[0], d) > minFields && fieldCount(lines[1], d) > minFields {
			return nil
		}
	}
	return fmt.Errorf("%w: no delimiter splits header and first record", ErrRejected)
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isMarkup(lines []string) bool {
	if _, ok := leadingTag(lines[0]); ok {
		return true
	}
	for i, l := range lines {
		if i >= sniffLines {
			break
		}
		if tag, ok := leadingTag(l); ok && documentTags[tag] {
			return true
		}
	}
	return false
}

// leadingTag tokenizes the start of line. ok is true when the line opens with
// a doctype, a comment, or a start tag of a known HTML element; tag is zero
// for doctypes and comments.
func leadingTag(line string) (tag atom.Atom, ok bool) {
	if !strings.HasPrefix(line, "<") {
		return 0, false
	}
	z := html.NewTokenizer(strings.NewReader(line))
	switch z.Next() {
	case html.DoctypeToken, html.CommentToken:
		return 0, true
	case html.StartTagToken, html.SelfClosingTagToken:
		name, _ := z.TagName()
		a := atom.Lookup(name)
		return a, a != 0
	}
	return 0, false
}

func fieldCount(line string, delim rune) int {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return 0
	}
	return len(record)
}
