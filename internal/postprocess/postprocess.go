// Package postprocess removes common LLM artifacts from translation output.
//
// Clean is applied to the raw text returned by a chat backend before the
// integrity check runs; it must leave sentinel marker lines untouched.
// StripMarkers runs later, when merging verified chunks, and removes any
// marker residue the model echoed back.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes model artifacts from text in two phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//
// Quote unwrapping is deliberately not performed: a Markdown chunk can
// legitimately begin and end with quote characters, and stripping them
// would corrupt content.
func Clean(text string) string {
	text = StripReasoning(text)
	text = StripEchoes(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

// StripReasoning removes complete and truncated thinking blocks.
func StripReasoning(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to.  Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [refined|polished|translated] translation:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:refined |polished |translated )?(?:translation|text)\s*:`),
	// "[The] [refined|polished] [translation|translated text]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished )?(?:translation|translated text)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] translation:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:refined |polished |translated )?(?:translation|text)\s*:`),
}

// StripEchoes removes a leading instruction echo, if present.
func StripEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: integrity marker residue ---

// markerVariants are the sentinel forms observed in model output: the
// exact tokens the prompt asks for, plus HTML-comment spellings some
// models substitute.
var markerVariants = []string{
	"<<<TRANSLATION_START_MARKER>>>",
	"<<<TRANSLATION_END_MARKER>>>",
	"<!-- TRANSLATION_START -->",
	"<!-- TRANSLATION_END -->",
}

// StripMarkers removes every sentinel marker variant and then drops
// leading and trailing blank lines. Interior blank lines and the
// indentation of the first content line are preserved, so Markdown
// structure survives the cleanup.
func StripMarkers(text string) string {
	for _, marker := range markerVariants {
		text = strings.ReplaceAll(text, marker, "")
	}
	lines := strings.Split(text, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
