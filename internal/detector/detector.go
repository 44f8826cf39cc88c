// Package detector identifies the source language of Markdown
// documents so translation runs can default to auto detection.
package detector

import (
	"regexp"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// maxSampleBytes bounds how much prose is fed to the language models;
// a few paragraphs identify a document as reliably as the whole file.
const maxSampleBytes = 4096

var orderedItemRe = regexp.MustCompile(`^\d+[.)]\s+`)

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lowercase ISO 639-1 code, matching the
// language flags the CLI accepts.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// DetectDocument samples prose from a Markdown document and detects
// its language. Fenced code, tables and raw HTML are skipped so that
// syntax does not skew detection toward English.
func (d *Detector) DetectDocument(content string) (string, bool) {
	sample := proseSample(content, maxSampleBytes)
	if sample == "" {
		return "", false
	}
	return d.DetectISO(sample)
}

func proseSample(content string, limit int) string {
	var b strings.Builder
	inFence := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, "<") {
			continue
		}

		// Drop heading, quote and list markers, keep the text.
		trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#>"))
		for _, marker := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(trimmed, marker) {
				trimmed = strings.TrimSpace(trimmed[len(marker):])
				break
			}
		}
		trimmed = orderedItemRe.ReplaceAllString(trimmed, "")
		if trimmed == "" || strings.Trim(trimmed, "-=_* ") == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(trimmed)
		if b.Len() >= limit {
			break
		}
	}
	return b.String()
}
