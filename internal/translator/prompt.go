package translator

import (
	"fmt"
	"sort"
	"strings"
)

// BuildPrompt renders the user message for a chat completion. All
// backends share one prompt so chunks read the same regardless of
// which endpoint served them.
func BuildPrompt(req Request) string {
	source := req.SourceLang
	if source == "" || source == "auto" {
		source = "the detected source language"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following Markdown content from %s to %s.\n\n", source, req.TargetLang)
	b.WriteString("CRITICAL REQUIREMENTS:\n")
	b.WriteString("1. Preserve ALL Markdown formatting: headers, lists, tables, links, code fences\n")
	b.WriteString("2. Do NOT translate code blocks, URLs, file paths, or identifiers\n")
	b.WriteString("3. Keep any <<<...>>> marker lines exactly as they appear\n")
	b.WriteString("4. Keep the line structure close to the original\n")
	b.WriteString("5. Return ONLY the translated content, no explanations\n")

	if len(req.GlossaryTerms) > 0 {
		b.WriteString("\nTERMINOLOGY (use these exact translations):\n")
		terms := make([]string, 0, len(req.GlossaryTerms))
		for term := range req.GlossaryTerms {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			fmt.Fprintf(&b, "  %s → %s\n", term, req.GlossaryTerms[term])
		}
	}

	if req.Instructions != "" {
		b.WriteString("\nADDITIONAL INSTRUCTIONS:\n")
		b.WriteString(req.Instructions)
		b.WriteString("\n")
	}

	b.WriteString("\nContent to translate:\n")
	b.WriteString(req.Text)
	return b.String()
}
