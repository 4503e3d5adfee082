package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LiveJournalUserURL returns the journal address LiveJournal uses for a user
// name in <lj user> tags.
func LiveJournalUserURL(name string) string {
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return "http://users.livejournal.com/" + name + "/"
	}
	return "http://" + name + ".livejournal.com/"
}

// LiveJournalCommunityURL returns the address of a community journal.
func LiveJournalCommunityURL(name string) string {
	return "http://communities.livejournal.com/" + name + "/"
}

// RewriteLiveJournal removes LiveJournal-only markup from s: <lj-raw> and
// <lj-cut> are replaced by their contents and <lj user> / <lj comm> become
// links to the named journal. s is returned as is when it has none.
func RewriteLiveJournal(s string) (string, error) {
	root, err := ParseFragment(s)
	if err != nil {
		return "", err
	}

	changed := false
	Walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "lj-raw", "lj-cut":
			unwrap(n)
			changed = true
		case "lj":
			// <lj> is a void tag on LiveJournal; the parser nests whatever
			// follows it, which unwrap puts back in place after the link.
			if link := journalLink(n); link != nil {
				n.Parent.InsertBefore(link, n)
			}
			unwrap(n)
			changed = true
		}
	})

	if !changed {
		return s, nil
	}
	return Render(root)
}

func journalLink(n *html.Node) *html.Node {
	var name, href string
	if user, ok := Attr(n, "user"); ok {
		name, href = user, LiveJournalUserURL(user)
	} else if comm, ok := Attr(n, "comm"); ok {
		name, href = comm, LiveJournalCommunityURL(comm)
	} else {
		return nil
	}

	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr:     []html.Attribute{{Key: "href", Val: href}},
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: name})
	return a
}
