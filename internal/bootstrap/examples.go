package bootstrap

import "tikz-playground/internal/domain"

var exampleCatalog = []domain.ExampleSnippet{
	{
		ID:          "line",
		Name:        "Line segment",
		Description: "The smallest complete picture.",
		Source:      "\\begin{tikzpicture}\n  \\draw (0,0) -- (2,2);\n\\end{tikzpicture}",
	},
	{
		ID:          "shapes",
		Name:        "Nodes and arrows",
		Description: "Positioned nodes joined by arrows.meta tips.",
		Source: `\begin{tikzpicture}[node distance=2cm, every node/.style={draw, rounded corners}]
  \node (a) {Source};
  \node[right=of a] (b) {PDF};
  \node[right=of b] (c) {PNG};
  \draw[-{Stealth}] (a) -- node[above, draw=none] {\scriptsize pdflatex} (b);
  \draw[-{Stealth}] (b) -- node[above, draw=none] {\scriptsize pdftoppm} (c);
\end{tikzpicture}`,
	},
	{
		ID:          "plot",
		Name:        "pgfplots function",
		Description: "A plotted function with axis labels.",
		Source: `\begin{tikzpicture}
  \begin{axis}[xlabel=$x$, ylabel={$\sin x$}, domain=0:360, samples=60]
    \addplot[blue, thick] {sin(x)};
  \end{axis}
\end{tikzpicture}`,
	},
	{
		ID:          "loop",
		Name:        "foreach grid",
		Description: "Repeated drawing with pgffor.",
		Source: `\begin{tikzpicture}
  \foreach \x in {0,...,4}
    \foreach \y in {0,...,4}
      \fill[blue!\x0!red] (\x,\y) circle (0.3);
\end{tikzpicture}`,
	},
}

// Examples returns the snippet catalog offered by the editor.
func (a *App) Examples() []domain.ExampleSnippet {
	out := make([]domain.ExampleSnippet, len(exampleCatalog))
	copy(out, exampleCatalog)
	return out
}
