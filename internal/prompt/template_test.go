package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	out, err := Render("Task: {{task}} in {{path}}", Vars{"task": "add flag", "path": "main.go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Task: add flag in main.go" {
		t.Errorf("got %q", out)
	}
}

func TestRender_MissingVarErrors(t *testing.T) {
	_, err := Render("Hello {{name}}", Vars{})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestRender_ConditionalIncluded(t *testing.T) {
	tmpl := "start{{#if ctx}} with {{ctx}}{{/if}} end"
	out, err := Render(tmpl, Vars{"ctx": "context"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "start with context end" {
		t.Errorf("got %q", out)
	}
}

func TestRender_ConditionalOmittedWhenEmpty(t *testing.T) {
	tmpl := "start{{#if ctx}} with {{ctx}}{{/if}} end"
	out, err := Render(tmpl, Vars{"ctx": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "start end" {
		t.Errorf("got %q", out)
	}
}

func TestRender_NestedConditionals(t *testing.T) {
	tmpl := "{{#if a}}A{{#if b}}B{{/if}}{{/if}}"
	out, err := Render(tmpl, Vars{"a": "1", "b": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "AB" {
		t.Errorf("got %q", out)
	}

	out, err = Render(tmpl, Vars{"a": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "A" {
		t.Errorf("got %q", out)
	}
}

func TestRender_DanglingClose(t *testing.T) {
	if _, err := Render("text {{/if}}", Vars{}); err == nil {
		t.Error("expected error for dangling close tag")
	}
}

func TestRender_UnclosedOpen(t *testing.T) {
	if _, err := Render("{{#if a}} text", Vars{"a": "1"}); err == nil {
		t.Error("expected error for unclosed conditional")
	}
}

func TestLoadTemplate_Builtin(t *testing.T) {
	tmpl, err := LoadTemplate("plan.md", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(tmpl, "{{task}}") {
		t.Error("plan template should reference {{task}}")
	}
}

func TestLoadTemplate_Unknown(t *testing.T) {
	if _, err := LoadTemplate("nope.md", ""); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestLoadTemplate_ProjectOverride(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, ".taskpilot", "templates")
	if err := os.MkdirAll(override, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(override, "plan.md"), []byte("custom {{task}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := LoadTemplate("plan.md", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl != "custom {{task}}" {
		t.Errorf("override not used: %q", tmpl)
	}
}

func TestBuiltinTemplatesRender(t *testing.T) {
	vars := Vars{
		"task": "t", "context": "", "file_listing": "f",
		"path": "p", "description": "d", "content": "c",
		"problems": "e", "diff": "x", "kind": "compilation",
		"logs": "l", "summary": "s", "changes": "ch",
	}
	for name, tmpl := range builtinTemplates {
		if _, err := Render(tmpl, vars); err != nil {
			t.Errorf("builtin template %s does not render: %v", name, err)
		}
	}
}
