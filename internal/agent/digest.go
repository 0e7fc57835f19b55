package agent

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// interactiveTags are the elements worth showing to the model.
var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"textarea": true,
	"select":   true,
}

// ElementDigest summarizes a page's interactive elements as one line each,
// capped at maxElements. The digest is what the model sees instead of raw
// HTML, which would blow the context on an app like Apollo.
func ElementDigest(pageHTML string, maxElements int) string {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "(page could not be parsed)"
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(lines) >= maxElements {
			return
		}
		if n.Type == html.ElementNode && interactiveTags[n.Data] {
			if line := describeElement(n); line != "" {
				lines = append(lines, line)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(lines) == 0 {
		return "(no interactive elements found)"
	}
	return strings.Join(lines, "\n")
}

func describeElement(n *html.Node) string {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}

	if attrs["type"] == "hidden" || attrs["disabled"] != "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(n.Data)

	selector := cssSelector(n.Data, attrs)

	for _, key := range []string{"type", "placeholder", "aria-label", "name", "value", "href"} {
		if v := attrs[key]; v != "" {
			fmt.Fprintf(&sb, " %s=%q", key, clip(v, 60))
		}
	}

	text := clip(strings.TrimSpace(innerText(n)), 80)
	if text != "" {
		fmt.Fprintf(&sb, " text=%q", text)
	}
	sb.WriteString(">")

	if selector != "" {
		sb.WriteString(" selector=")
		sb.WriteString(selector)
	}
	return sb.String()
}

// cssSelector builds the most specific stable selector available.
func cssSelector(tag string, attrs map[string]string) string {
	if id := attrs["id"]; id != "" {
		return "#" + id
	}
	if v := attrs["data-cy"]; v != "" {
		return fmt.Sprintf(`%s[data-cy=%q]`, tag, v)
	}
	if v := attrs["name"]; v != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, v)
	}
	if v := attrs["placeholder"]; v != "" {
		return fmt.Sprintf(`%s[placeholder=%q]`, tag, v)
	}
	if v := attrs["aria-label"]; v != "" {
		return fmt.Sprintf(`%s[aria-label=%q]`, tag, v)
	}
	return ""
}

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
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
