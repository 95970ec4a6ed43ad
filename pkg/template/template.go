// Package template resolves node parameters against the current item and execution context.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/dukex/operion-dust/pkg/models"
)

// NoValue is what text/template prints for a missing map key.
const NoValue = "<no value>"

// Data builds the template data for one item of an execution. Only the item and
// what the host put in the execution context are visible; the process
// environment is not.
func Data(executionCtx *models.ExecutionContext, item map[string]any) map[string]any {
	return map[string]any{
		"item":      item,
		"json":      item,
		"variables": executionCtx.Variables,
		"vars":      executionCtx.Variables,
		"metadata":  executionCtx.Metadata,
		"execution": map[string]any{
			"id": executionCtx.ID,
		},
	}
}

// RenderWithContext renders input for one item and coerces the output like Render.
func RenderWithContext(input string, executionCtx *models.ExecutionContext, item map[string]any) (any, error) {
	return Render(input, Data(executionCtx, item))
}

// RenderString renders input for one item and returns the text unchanged.
// Inputs without template actions are returned as is.
func RenderString(input string, executionCtx *models.ExecutionContext, item map[string]any) (string, error) {
	if !NeedsTemplating(input) {
		return input, nil
	}

	return execute(input, Data(executionCtx, item))
}

// NeedsTemplating reports whether input contains a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Render executes templateStr and coerces the output to JSON, a number or a
// boolean when it parses as one.
func Render(templateStr string, data any) (any, error) {
	result, err := execute(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func execute(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("parameter").
		Funcs(template.FuncMap{
			"trim":  strings.TrimSpace,
			"lower": strings.ToLower,
			"upper": strings.ToUpper,
			"toJSON": func(v any) (string, error) {
				b, err := json.Marshal(v)

				return string(b), err
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}
