package domain

// ExampleSnippet is one ready-to-compile TikZ drawing offered by the UI.
type ExampleSnippet struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}
