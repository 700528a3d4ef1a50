package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Count  int      `json:"count"`
	Tags   []string `json:"tags,omitempty"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{ID: "sr-1", Status: "requested", Count: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := `{"id":"sr-1","status":"requested","count":2}` + "\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestYAMLFormatterUsesJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, sample{ID: "sr-1", Status: "requested", Count: 2, Tags: []string{"a"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"id: sr-1", "status: requested", "count: 2", "tags:", "- a"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ID:") {
		t.Fatalf("expected json tag names, got:\n%s", out)
	}
}

func TestForName(t *testing.T) {
	for name, want := range map[string]Formatter{
		"":     JSONFormatter{},
		"json": JSONFormatter{},
		"yaml": YAMLFormatter{},
		"yml":  YAMLFormatter{},
	} {
		got, err := ForName(name)
		if err != nil {
			t.Fatalf("ForName(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ForName(%q) = %T, want %T", name, got, want)
		}
	}
	if _, err := ForName("xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
