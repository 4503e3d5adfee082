// Package markup converts the text conventions of legacy blogging platforms
// into HTML.
package markup

import (
	"regexp"
	"strings"
)

const blockTags = `h1|h2|h3|h4|h5|h6|table|ol|dl|ul|menu|dir|p|pre|center|form|fieldset|select|blockquote|address|div|hr`

// Normalizer turns line-break formatted text into HTML paragraphs.
// Paragraphs that already open with a block-level tag are left bare.
type Normalizer struct {
	name    string
	blockRe *regexp.Regexp
}

var (
	// Generic matches block tags case-insensitively. LiveJournal and the
	// shared import path use it.
	Generic = &Normalizer{name: "generic", blockRe: regexp.MustCompile(`(?i)^</?(?:` + blockTags + `)`)}

	// MovableType matches block tags case-sensitively, so "<P>" still gets
	// wrapped. Imports from Movable Type must keep producing that output.
	MovableType = &Normalizer{name: "movabletype", blockRe: regexp.MustCompile(`^</?(?:` + blockTags + `)`)}
)

// Name identifies the rule set in logs.
func (n *Normalizer) Name() string { return n.name }

// Normalize returns text unchanged when it is preformatted and the result of
// Transform otherwise.
func (n *Normalizer) Normalize(text string, preformatted bool) string {
	if preformatted {
		return text
	}
	return n.Transform(text)
}

// Transform drops carriage returns, splits text on blank lines and wraps
// every paragraph that does not start with a block tag in <p>, turning its
// remaining newlines into <br>.
func (n *Normalizer) Transform(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	grafs := strings.Split(text, "\n\n")
	for i, graf := range grafs {
		if n.IsBlock(graf) {
			continue
		}
		grafs[i] = "<p>" + strings.ReplaceAll(graf, "\n", "<br>\n") + "</p>"
	}
	return strings.Join(grafs, "\n\n")
}

// IsBlock reports whether graf opens with a block-level tag.
func (n *Normalizer) IsBlock(graf string) bool {
	return n.blockRe.MatchString(graf)
}
