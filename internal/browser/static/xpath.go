// internal/browser/static/xpath.go
package static

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

// nodePath builds an XPath for node, anchored at the nearest ancestor with an
// id. It is what elements report from Describe.
func nodePath(node *html.Node) string {
	if node == nil {
		return ""
	}

	var path []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if tag == "" {
			continue
		}

		if id := htmlquery.SelectAttr(n, "id"); id != "" {
			path = append(path, "//*[@id="+xpathLiteral(id)+"]")
			break
		}

		// XPath indices are 1-based.
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	xpath := strings.Join(path, "/")
	if !strings.HasPrefix(xpath, "//*[@id=") {
		xpath = "/" + xpath
	}
	return xpath
}

// locatorXPath translates a locator into the XPath the in-process DOM is
// queried with. Only id selectors and bare tag names are understood for CSS
// locators.
func locatorXPath(loc dom.Locator) (string, error) {
	switch loc.By {
	case dom.ByID:
		return "//*[@id=" + xpathLiteral(loc.Value) + "]", nil
	case dom.ByTag:
		if !isName(loc.Value) {
			return "", fmt.Errorf("invalid tag name %q", loc.Value)
		}
		return "//" + strings.ToLower(loc.Value), nil
	case dom.ByCSS:
		sel := strings.TrimSpace(loc.Value)
		if strings.HasPrefix(sel, "#") && isName(sel[1:]) {
			return "//*[@id=" + xpathLiteral(sel[1:]) + "]", nil
		}
		if isName(sel) {
			return "//" + strings.ToLower(sel), nil
		}
		return "", fmt.Errorf("css selector %q is not supported by the static driver", loc.Value)
	default:
		return "", fmt.Errorf("unknown locator strategy %v", loc.By)
	}
}

// xpathLiteral quotes s for use in an XPath 1.0 expression, which has no
// escape syntax.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
