package auth

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// formAction returns the action attribute of the first form element in an
// HTML document, resolved against base.
func formAction(r io.Reader, base *url.URL) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse login response: %w", err)
	}

	action, ok := findFormAction(doc)
	if !ok || strings.TrimSpace(action) == "" {
		return "", ErrNoForm
	}

	ref, err := url.Parse(strings.TrimSpace(action))
	if err != nil {
		return "", fmt.Errorf("parse form action %q: %w", action, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String(), nil
}

func findFormAction(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "form" {
		for _, attr := range n.Attr {
			if strings.EqualFold(attr.Key, "action") {
				return attr.Val, true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if action, ok := findFormAction(c); ok {
			return action, true
		}
	}
	return "", false
}
