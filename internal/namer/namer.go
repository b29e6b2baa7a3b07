// Package namer generates human-readable folder names for clusters from
// representative document texts, using the active LLM with a keyword-
// extraction fallback.
package namer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/sefs-io/sefs/internal/embed"
)

const (
	maxSnippets      = 5
	snippetChars     = 500
	maxNameLength    = 50
	fallbackName     = "Misc"
	defaultEmptyName = "Miscellaneous"
)

// llm is the completion capability the namer needs.
type llm interface {
	Chat(ctx context.Context, messages []embed.Message) (string, error)
}

// Namer produces cluster folder names.
type Namer struct {
	llm    llm
	logger *slog.Logger
}

// Option configures the Namer.
type Option func(*Namer)

// WithLogger sets the logger for the namer.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Namer) {
		n.logger = logger
	}
}

// New creates a namer over the given LLM.
func New(llm llm, opts ...Option) *Namer {
	n := &Namer{
		llm:    llm,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// GenerateClusterName produces a short descriptive folder name from
// representative document texts, avoiding existingNames. It never fails:
// when the LLM is unavailable the name is built from the texts' keywords.
func (n *Namer) GenerateClusterName(ctx context.Context, texts, existingNames []string) string {
	snippets := buildSnippets(texts)
	if len(snippets) == 0 {
		return defaultEmptyName
	}

	prompt := buildPrompt(snippets, existingNames)

	reply, err := n.llm.Chat(ctx, []embed.Message{{Role: "user", Content: prompt}})
	if err == nil {
		name := SanitizeName(reply)
		if name != fallbackName && !strings.EqualFold(name, "miscellaneous") {
			return name
		}
	} else {
		n.logger.Warn("LLM naming failed, using keyword fallback", "error", err)
	}

	return keywordName(snippets)
}

func buildSnippets(texts []string) []string {
	var snippets []string
	for _, t := range texts {
		if len(snippets) == maxSnippets {
			break
		}
		s := strings.TrimSpace(firstN(t, snippetChars))
		if s != "" {
			snippets = append(snippets, s)
		}
	}
	return snippets
}

func buildPrompt(snippets, existingNames []string) string {
	existing := "none"
	if len(existingNames) > 0 {
		existing = strings.Join(existingNames, ", ")
	}

	return fmt.Sprintf(`Based on these document excerpts from a folder of related files, generate a short descriptive folder name (2-4 words, use underscores between words, no special characters).

Existing folder names (avoid duplicates): %s

Document excerpts:
%s

Reply with ONLY the folder name, nothing else. Example: Machine_Learning_Research`,
		existing, strings.Join(snippets, "\n---\n"))
}

var (
	separatorRe = regexp.MustCompile(`[\s\-]+`)
	invalidRe   = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	wordRe      = regexp.MustCompile(`[a-z]{3,}`)
)

// SanitizeName cleans a generated name for filesystem use. Spaces and
// hyphens become underscores; everything else non-alphanumeric is dropped.
// An empty result becomes "Misc".
func SanitizeName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "\"'`.")
	name = separatorRe.ReplaceAllString(name, "_")
	name = invalidRe.ReplaceAllString(name, "")
	name = firstN(name, maxNameLength)
	name = strings.Trim(name, "_")
	if name == "" {
		return fallbackName
	}
	return name
}

// keywordName forms a name from the three most frequent non-stopword words.
func keywordName(snippets []string) string {
	counts := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(strings.Join(snippets, " ")), -1) {
		if stopwords[w] {
			continue
		}
		counts[w]++
	}

	type wordCount struct {
		word  string
		count int
	}
	ranked := make([]wordCount, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, wordCount{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	var parts []string
	for i := 0; i < len(ranked) && i < 3; i++ {
		parts = append(parts, capitalize(ranked[i].word))
	}
	if len(parts) == 0 {
		return fallbackName
	}
	return strings.Join(parts, "_")
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var stopwords = map[string]bool{
	"the": true, "is": true, "are": true, "was": true, "were": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "shall": true, "can": true,
	"need": true, "dare": true, "ought": true, "used": true, "for": true,
	"with": true, "from": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true, "between": true,
	"out": true, "off": true, "over": true, "under": true, "again": true,
	"further": true, "then": true, "once": true, "here": true, "there": true,
	"when": true, "where": true, "why": true, "how": true, "all": true,
	"both": true, "each": true, "few": true, "more": true, "most": true,
	"other": true, "some": true, "such": true, "nor": true, "not": true,
	"only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "because": true, "but": true, "and": true,
	"while": true, "this": true, "that": true, "these": true, "those": true,
	"its": true, "our": true, "you": true, "your": true, "his": true,
	"her": true, "they": true, "their": true, "what": true, "which": true,
	"who": true, "whom": true, "she": true,
}
