package compile

import "github.com/valyala/fasttemplate"

// documentTemplate wraps a drawing in a standalone page cropped to the
// picture's bounding box. [[body]] is the single substitution point.
const documentTemplate = `
\documentclass[tikz,border=2mm]{standalone}
\usepackage{pgfplots}
\usepackage{pgffor,etoolbox}
\usepackage{tikz}
\usetikzlibrary{arrows.meta, shapes.geometric, fit, decorations, shapes, shapes.geometric, shapes.multipart}
\usetikzlibrary{positioning,shapes,shadows,arrows,pgfplots.colormaps,backgrounds,calc}
\begin{document}
[[body]]
\end{document}
`

var document = fasttemplate.New(documentTemplate, "[[", "]]")

// RenderDocument embeds source verbatim into the document template.
// No escaping is applied: source must be valid document-body content.
func RenderDocument(source string) string {
	return document.ExecuteString(map[string]interface{}{
		"body": source,
	})
}
