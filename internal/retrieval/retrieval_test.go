package retrieval

import (
	"context"
	"testing"
)

func TestNull_ReturnsEmpty(t *testing.T) {
	out, err := Null{}.Search(context.Background(), "anything", 8)
	if err != nil || out != "" {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestCommand_PassesQueryAndTopK(t *testing.T) {
	c := &Command{Cmd: "echo"}
	out, err := c.Search(context.Background(), "find the parser", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "find the parser 5" {
		t.Errorf("got %q", out)
	}
}

func TestCommand_QuotesSingleQuotes(t *testing.T) {
	c := &Command{Cmd: "echo"}
	out, err := c.Search(context.Background(), "don't break", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "don't break 1" {
		t.Errorf("got %q", out)
	}
}

func TestCommand_FailurePropagates(t *testing.T) {
	c := &Command{Cmd: "false"}
	if _, err := c.Search(context.Background(), "q", 1); err == nil {
		t.Error("expected error from failing command")
	}
}
