package snapshot

import (
	"strings"

	"golang.org/x/net/html"
)

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// setAttr sets or replaces an attribute on an HTML node.
func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// detach removes a node from its parent. Safe on already-detached nodes.
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// innerText collects the concatenated text content of a node's children.
// Used for inline <style> and <script> bodies.
func innerText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return sb.String()
}

// findElement returns the first element with the given tag name in
// document order, or nil.
func findElement(root *html.Node, tag string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// findAllElements returns every element whose tag name is in tags, in
// document order. The result is collected up front so callers can
// mutate the tree while iterating.
func findAllElements(root *html.Node, tags ...string) []*html.Node {
	want := make(map[string]bool, len(tags))
	for _, tag := range tags {
		want[tag] = true
	}

	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && want[n.Data] {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return nodes
}

// childElements returns a snapshot of a node's direct element children,
// so the caller can detach nodes while iterating in document order.
func childElements(n *html.Node) []*html.Node {
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, c)
		}
	}
	return children
}

// newElement creates an element node with the given tag and attributes
// (key, value pairs).
func newElement(tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type: html.ElementNode,
		Data: tag,
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// relTokens splits a rel attribute into lower-cased whitespace tokens.
// rel is a space-separated token list ("shortcut icon").
func relTokens(n *html.Node) []string {
	return strings.Fields(strings.ToLower(getAttr(n, "rel")))
}

// hasRelToken reports whether any rel token matches one of the wanted
// values.
func hasRelToken(n *html.Node, wanted ...string) bool {
	for _, token := range relTokens(n) {
		for _, w := range wanted {
			if token == w {
				return true
			}
		}
	}
	return false
}
