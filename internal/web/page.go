package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultSource prefills the editor on first load.
const DefaultSource = "\\begin{tikzpicture}\n  \\draw (0,0) -- (2,2);\n\\end{tikzpicture}"

//go:embed assets
var assets embed.FS

var indexTemplate = template.Must(template.ParseFS(assets, "assets/index.html"))

type pageData struct {
	Head          template.HTML
	References    template.HTML
	DefaultSource string
}

// staticFS serves stylesheet files under /static.
func staticFS() fs.FS {
	sub, err := fs.Sub(assets, "assets/static")
	if err != nil {
		panic(err)
	}
	return sub
}

// buildPage renders the index document once at startup.
func buildPage() ([]byte, error) {
	head, err := assets.ReadFile("assets/head.html")
	if err != nil {
		return nil, err
	}
	script, err := assets.ReadFile("assets/script.js")
	if err != nil {
		return nil, err
	}
	refs, err := assets.ReadFile("assets/references.md")
	if err != nil {
		return nil, err
	}

	patched, err := inlineFirstScript(string(head), string(script))
	if err != nil {
		return nil, fmt.Errorf("patch head: %w", err)
	}
	references, err := renderMarkdown(refs)
	if err != nil {
		return nil, fmt.Errorf("render references: %w", err)
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, pageData{
		Head:          template.HTML(patched),
		References:    template.HTML(references),
		DefaultSource: DefaultSource,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inlineFirstScript replaces the first <script> element of a head fragment
// with an inline script holding js. Later scripts are left untouched.
func inlineFirstScript(head, js string) (string, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	nodes, err := html.ParseFragment(strings.NewReader(head), parent)
	if err != nil {
		return "", err
	}

	replaced := false
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if replaced {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			for c := n.FirstChild; c != nil; c = n.FirstChild {
				n.RemoveChild(c)
			}
			n.Attr = nil
			n.AppendChild(&html.Node{Type: html.TextNode, Data: "\n" + js + "\n"})
			replaced = true
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		visit(n)
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}

// renderMarkdown converts the references section to HTML.
func renderMarkdown(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
