package tui

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "Samantha")
	if !strings.Contains(buf.String(), "talking to Samantha") {
		t.Errorf("banner does not name the soul:\n%s", buf.String())
	}

	buf.Reset()
	PrintBanner(&buf, "")
	if strings.Contains(buf.String(), "talking to") {
		t.Errorf("banner names an empty soul:\n%s", buf.String())
	}
}

func TestSystemStyler(t *testing.T) {
	got := SystemStyler()("[system] conversation reset")
	if !strings.Contains(got, "conversation reset") {
		t.Errorf("styler dropped the text: %q", got)
	}
}

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer(60)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	out, err := render("**hello**")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("rendered output lost the text: %q", out)
	}
}
