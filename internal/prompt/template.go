package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Render expands a template string with the given variables.
// {{variable}} is replaced with its value. Missing required variables cause
// an error. {{#if variable}}...{{/if}} blocks are included only if the
// variable is non-empty.
func Render(tmpl string, vars Vars) (string, error) {
	result, err := processConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	expanded := varRe.ReplaceAllStringFunc(result, func(match string) string {
		m := varRe.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		if val, ok := vars[m[1]]; ok {
			return val
		}
		missing = append(missing, m[1])
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// processConditionals handles {{#if var}}...{{/if}} blocks, supporting
// nesting. Innermost blocks resolve first: each pass pairs the first
// {{/if}} with the last {{#if}} before it.
func processConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			break
		}

		prefix := result[:closeIdx]
		openLocs := ifOpenRe.FindAllStringIndex(prefix, -1)
		if openLocs == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}

		lastOpen := openLocs[len(openLocs)-1]
		openStart, openEnd := lastOpen[0], lastOpen[1]

		m := ifOpenRe.FindStringSubmatch(prefix[openStart:openEnd])
		if m == nil {
			return "", fmt.Errorf("failed to parse conditional tag: %s", prefix[openStart:openEnd])
		}

		body := result[openEnd:closeIdx]
		closeEnd := closeIdx + len(ifCloseStr)

		var replacement string
		if val, ok := vars[m[1]]; ok && val != "" {
			replacement = body
		}
		result = result[:openStart] + replacement + result[closeEnd:]
	}

	if ifOpenRe.MatchString(result) {
		return "", fmt.Errorf("unclosed conditional block: %s", ifOpenRe.FindString(result))
	}
	return result, nil
}

// LoadTemplate returns the template with the given name. A project-level
// override under <repoDir>/.taskpilot/templates/ wins over the builtin.
func LoadTemplate(name string, repoDir string) (string, error) {
	if repoDir != "" {
		override := filepath.Join(repoDir, ".taskpilot", "templates", filepath.Base(name))
		if data, err := os.ReadFile(override); err == nil {
			return string(data), nil
		}
	}
	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return tmpl, nil
}
