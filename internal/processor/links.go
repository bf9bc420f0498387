package processor

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"linkchaser/pkg/types"
)

// ArticlePrefix is the path prefix of internal article links.
const ArticlePrefix = "/wiki/"

// linkAttributes lists the attributes that can carry a URL. Only href
// qualifies for traversal, the rest are enumerated so callers see links in
// the same order a generic link iterator would report them.
var linkAttributes = map[string]struct{}{
	"action":     {},
	"archive":    {},
	"background": {},
	"cite":       {},
	"codebase":   {},
	"data":       {},
	"formaction": {},
	"href":       {},
	"longdesc":   {},
	"poster":     {},
	"profile":    {},
	"src":        {},
	"usemap":     {},
}

// Link is one URL-bearing attribute found in markup.
type Link struct {
	Element string
	Attr    string
	Target  string
}

// FirstLink returns the first internal article link of markup in document
// order, or false when there is none.
func FirstLink(markup string) (types.DocumentID, bool) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	var found types.DocumentID
	walkLinks(root, func(l Link) bool {
		if l.Attr != "href" {
			return true
		}
		id, ok := NormalizeLink(l.Target)
		if !ok {
			return true
		}
		found = id
		return false
	})
	return found, found != ""
}

// Links lists every URL-bearing attribute of markup in document order.
func Links(markup string) ([]Link, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	var links []Link
	walkLinks(root, func(l Link) bool {
		links = append(links, l)
		return true
	})
	return links, nil
}

// NormalizeLink turns an internal link target into a DocumentID: the prefix
// is removed, the rest percent-decoded, cut at the fragment and underscores
// replaced by spaces. Targets outside ArticlePrefix are rejected.
func NormalizeLink(target string) (types.DocumentID, bool) {
	if !strings.HasPrefix(target, ArticlePrefix) {
		return "", false
	}
	title := target[len(ArticlePrefix):]
	if decoded, err := url.PathUnescape(title); err == nil {
		title = decoded
	}
	title = strings.ReplaceAll(title, "_", " ")
	if pos := strings.IndexByte(title, '#'); pos != -1 {
		title = title[:pos]
	}
	id := types.NewDocumentID(title)
	if id.IsZero() {
		return "", false
	}
	return id, true
}

// walkLinks visits elements depth-first in document order and stops as soon
// as fn returns false.
func walkLinks(node *html.Node, fn func(Link) bool) bool {
	if node == nil {
		return true
	}
	if node.Type == html.ElementNode {
		for _, a := range node.Attr {
			key := strings.ToLower(a.Key)
			if _, ok := linkAttributes[key]; !ok {
				continue
			}
			if !fn(Link{Element: node.Data, Attr: key, Target: strings.TrimSpace(a.Val)}) {
				return false
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if !walkLinks(child, fn) {
			return false
		}
	}
	return true
}
