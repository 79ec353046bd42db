package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/GoCodeAlone/alouette/backend"
)

// Format selects how Save renders a translation.
type Format string

const (
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts txt, json, md and markdown in any case. Anything else
// falls back to FormatText.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "md", "markdown":
		return FormatMarkdown
	default:
		return FormatText
	}
}

const timestampLayout = "2006-01-02 15:04:05 MST"

// Render formats r in the given format.
func Render(r Result, format Format) (string, error) {
	switch format {
	case FormatJSON:
		raw, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		return string(raw), nil
	case FormatMarkdown:
		return renderMarkdown(r), nil
	default:
		return renderText(r), nil
	}
}

func renderText(r Result) string {
	var b strings.Builder
	b.WriteString("Translation Results\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.Timestamp.Format(timestampLayout))
	b.WriteString("Original Language: Auto-detected\n")
	fmt.Fprintf(&b, "Target Languages: %s\n", strings.Join(r.Languages, ", "))
	fmt.Fprintf(&b, "Model: %s\n\n", r.Model)
	fmt.Fprintf(&b, "Original Text:\n%s\n\n", r.Original)
	b.WriteString("Translations:\n")
	for _, lang := range orderedLanguages(r) {
		fmt.Fprintf(&b, "\n%s:\n%s\n", lang, r.Translations[lang])
	}
	return b.String()
}

func renderMarkdown(r Result) string {
	var b strings.Builder
	b.WriteString("# Translation Results\n\n")
	fmt.Fprintf(&b, "**Generated:** %s  \n", r.Timestamp.Format(timestampLayout))
	b.WriteString("**Original Language:** Auto-detected  \n")
	fmt.Fprintf(&b, "**Target Languages:** %s  \n", strings.Join(r.Languages, ", "))
	fmt.Fprintf(&b, "**Model:** %s\n\n", r.Model)
	fmt.Fprintf(&b, "## Original Text\n\n%s\n\n", r.Original)
	b.WriteString("## Translations\n\n")
	for _, lang := range orderedLanguages(r) {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", lang, r.Translations[lang])
	}
	return b.String()
}

// orderedLanguages lists translated languages in request order, followed by
// any extra languages the backend returned, sorted.
func orderedLanguages(r Result) []string {
	out := make([]string, 0, len(r.Translations))
	for _, lang := range r.Languages {
		if _, ok := r.Translations[lang]; ok {
			out = append(out, lang)
		}
	}
	var extra []string
	for lang := range r.Translations {
		if !slices.Contains(r.Languages, lang) {
			extra = append(extra, lang)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

type saveRequest struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// Save renders the current translation and asks the backend to write it.
// It returns the path the backend saved to.
func (s *Service) Save(ctx context.Context, filename string, format Format) (string, error) {
	current, ok := s.Current()
	if !ok {
		return "", ErrNoTranslation
	}

	content, err := Render(current, format)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	var path string
	if err := s.invoker.Invoke(ctx, backend.CommandSaveTranslationFile, saveRequest{
		Content:  content,
		Filename: filename,
	}, &path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	s.logger.Info("Translation saved", "path", path, "format", string(format))
	return path, nil
}
