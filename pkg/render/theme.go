package render

import (
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"
)

// Theme carries the resolved palette for a page.
type Theme struct {
	Name    string            `json:"name,omitempty"`
	Variant string            `json:"variant,omitempty"`
	Tokens  map[string]string `json:"tokens,omitempty"`
	CSSVars map[string]string `json:"css_vars,omitempty"`
	Style   string            `json:"style,omitempty"`
}

// DefaultManifest is the built-in verdict palette with a dark variant.
func DefaultManifest() *theme.Manifest {
	return &theme.Manifest{
		Name:    "churnform",
		Version: "1.0.0",
		Tokens: map[string]string{
			"surface":      "#ffffff",
			"text":         "#1f2328",
			"accent":       "#e50914",
			"border":       "#d0d7de",
			"verdict-risk": "#b42318",
			"verdict-safe": "#067647",
			"error":        "#b42318",
		},
		Variants: map[string]theme.Variant{
			"dark": {
				Tokens: map[string]string{
					"surface":      "#0e1117",
					"text":         "#fafafa",
					"border":       "#30363d",
					"verdict-risk": "#ff6b6b",
					"verdict-safe": "#3fb950",
				},
			},
		},
	}
}

// ThemeFromSelection merges the manifest tokens with the selected variant and
// derives CSS custom properties (--token) from them.
func ThemeFromSelection(sel *theme.Selection) Theme {
	if sel == nil || sel.Manifest == nil {
		return Theme{}
	}
	tokens := make(map[string]string, len(sel.Manifest.Tokens))
	for key, value := range sel.Manifest.Tokens {
		tokens[key] = value
	}
	if variant, ok := sel.Manifest.Variants[sel.Variant]; ok {
		for key, value := range variant.Tokens {
			tokens[key] = value
		}
	}
	out := Theme{
		Name:    sel.Theme,
		Variant: sel.Variant,
		Tokens:  tokens,
		CSSVars: make(map[string]string, len(tokens)),
	}
	for key, value := range tokens {
		out.CSSVars["--"+strings.TrimPrefix(key, "--")] = value
	}
	out.Style = cssVarsStyle(out.CSSVars)
	return out
}

// DefaultTheme selects variant from DefaultManifest. Unknown variants fall
// back to the base tokens.
func DefaultTheme(variant string) Theme {
	manifest := DefaultManifest()
	return ThemeFromSelection(&theme.Selection{
		Theme:    manifest.Name,
		Variant:  strings.TrimSpace(variant),
		Manifest: manifest,
	})
}

func cssVarsStyle(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, key := range keys {
		b.WriteString("  ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(vars[key])
		b.WriteString(";\n")
	}
	b.WriteString("}")
	return b.String()
}
