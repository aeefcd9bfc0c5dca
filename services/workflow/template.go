package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/aymerick/raymond"
)

// resolveTemplate renders a Handlebars template against vars. Besides plain
// {{variable}} substitution it offers {{json value}}, which inlines value as
// indented JSON without HTML escaping.
//
// Handlebars lexes "}}}" as the end of a triple-stash, so a body such as
// {"x": {{x}}} fails to parse. Write {"x": {{x}} } instead.
func resolveTemplate(source string, vars map[string]any) (string, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	tpl.RegisterHelper("json", jsonHelper)

	out, err := tpl.Exec(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

func jsonHelper(value any) raymond.SafeString {
	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return raymond.SafeString("null")
	}
	return raymond.SafeString(b)
}
