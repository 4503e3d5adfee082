package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// plaintextElements keep their newlines when comment breaks are converted.
var plaintextElements = map[string]bool{
	"pre":    true,
	"lj-raw": true,
	"table":  true,
}

// ConvertCommentBreaks adds a <br> before every newline in the text of s,
// except for text inside pre, lj-raw and table elements. s is returned as is
// when no text needed converting.
func ConvertCommentBreaks(s string) (string, error) {
	root, err := ParseFragment(s)
	if err != nil {
		return "", err
	}

	changed := false
	Walk(root, func(n *html.Node) {
		if n.Type != html.TextNode || !strings.Contains(n.Data, "\n") || insidePlaintext(n) {
			return
		}
		lines := strings.Split(n.Data, "\n")
		for i, line := range lines {
			if i > 0 {
				n.Parent.InsertBefore(&html.Node{Type: html.RawNode, Data: "<br>\n"}, n)
			}
			if line != "" {
				n.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: line}, n)
			}
		}
		n.Parent.RemoveChild(n)
		changed = true
	})

	if !changed {
		return s, nil
	}
	return Render(root)
}

func insidePlaintext(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && plaintextElements[p.Data] {
			return true
		}
	}
	return false
}
