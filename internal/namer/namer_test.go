package namer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sefs-io/sefs/internal/embed"
)

type fakeLLM struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Chat(_ context.Context, messages []embed.Message) (string, error) {
	if len(messages) > 0 {
		f.lastPrompt = messages[0].Content
	}
	return f.reply, f.err
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Machine Learning Research", "Machine_Learning_Research"},
		{`"Tax-Documents-2024"`, "Tax_Documents_2024"},
		{"  notes.  ", "notes"},
		{"___", "Misc"},
		{"", "Misc"},
		{"weird!@#name", "weirdname"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateClusterName_UsesLLMReply(t *testing.T) {
	f := &fakeLLM{reply: "Quarterly Finance Reports\n"}
	n := New(f)

	got := n.GenerateClusterName(context.Background(), []string{"revenue spreadsheet for Q3"}, []string{"Invoices"})
	if got != "Quarterly_Finance_Reports" {
		t.Errorf("expected sanitized LLM name, got %q", got)
	}

	if !strings.Contains(f.lastPrompt, "Invoices") {
		t.Error("expected existing names in prompt")
	}
	if !strings.Contains(f.lastPrompt, "revenue spreadsheet") {
		t.Error("expected snippet in prompt")
	}
}

func TestGenerateClusterName_FallsBackToKeywords(t *testing.T) {
	f := &fakeLLM{err: errors.New("model not loaded")}
	n := New(f)

	texts := []string{
		"neural network training with neural gradients",
		"network training converges when the network is small",
	}
	got := n.GenerateClusterName(context.Background(), texts, nil)

	if got == fallbackName {
		t.Fatalf("expected keyword-derived name, got %q", got)
	}
	if !strings.Contains(got, "Network") {
		t.Errorf("expected dominant keyword in name, got %q", got)
	}
}

func TestGenerateClusterName_EmptyTexts(t *testing.T) {
	n := New(&fakeLLM{})

	if got := n.GenerateClusterName(context.Background(), nil, nil); got != "Miscellaneous" {
		t.Errorf("expected Miscellaneous for empty input, got %q", got)
	}
	if got := n.GenerateClusterName(context.Background(), []string{"   "}, nil); got != "Miscellaneous" {
		t.Errorf("expected Miscellaneous for blank input, got %q", got)
	}
}

func TestGenerateClusterName_RejectsMiscellaneousReply(t *testing.T) {
	f := &fakeLLM{reply: "miscellaneous"}
	n := New(f)

	got := n.GenerateClusterName(context.Background(), []string{"kubernetes deployment manifests for production"}, nil)
	if strings.EqualFold(got, "miscellaneous") {
		t.Errorf("expected keyword fallback instead of Miscellaneous, got %q", got)
	}
}
