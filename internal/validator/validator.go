// Package validator guards translation integrity. Chunks are wrapped in
// sentinel marker lines before being sent to a model; the markers coming
// back is evidence the model processed the whole span instead of
// truncating it. After translation the verdict compares line counts and
// Markdown structure element counts between source and result and scores
// a confidence in [0,1].
package validator

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// StartMarker and EndMarker are the sentinel lines wrapped around
	// chunk content. The exact literals matter: the model is asked to
	// echo them back verbatim.
	StartMarker = "<<<TRANSLATION_START_MARKER>>>"
	EndMarker   = "<<<TRANSLATION_END_MARKER>>>"

	// DefaultLineTolerance is the allowed fractional line-count drift
	// between source and translation.
	DefaultLineTolerance = 0.1

	// PassConfidence is the score at or above which a verdict passes
	// even when issues were recorded.
	PassConfidence = 0.5
)

// Confidence penalties per issue category. Marker absence is a warning
// and deliberately cheap; structural mismatches cost the most per
// category because they indicate the translation reshaped the document.
const (
	markerPenalty    = 0.1
	lineCountPenalty = 0.3
	structurePenalty = 0.2
	fencePenalty     = 0.1
)

// warningSuffix tags issues that never fail a verdict on their own.
const warningSuffix = "(warning)"

var (
	fenceRe    = regexp.MustCompile("(?m)^```\\w*$|^~~~\\w*$")
	headerRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	tableRowRe = regexp.MustCompile(`(?m)^\|.*\|$`)
	linkRe     = regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)
	imageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)

	startMarkerRe = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(StartMarker) + `\n?`)
	endMarkerRe   = regexp.MustCompile(`(?m)\n?` + regexp.QuoteMeta(EndMarker) + `$`)
)

// Verdict is the outcome of comparing a translation against its source.
type Verdict struct {
	// Passed is true when no non-warning issue was found, or when the
	// confidence still clears PassConfidence despite issues.
	Passed bool

	// Issues lists every finding. Warnings carry a "(warning)" suffix.
	Issues []string

	// Confidence starts at 1.0 and loses a fixed penalty per issue
	// category, clamped to [0,1].
	Confidence float64

	// LineCountDiff is the absolute line-count difference after marker
	// removal.
	LineCountDiff int

	// HasMarkers reports whether both sentinels appeared in the
	// translated text.
	HasMarkers bool
}

// Validator scores translated chunks against their source content.
type Validator struct {
	lineTolerance float64
}

// New returns a Validator allowing the given fractional line-count
// drift. A tolerance of zero or less selects DefaultLineTolerance.
func New(tolerance float64) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultLineTolerance
	}
	return &Validator{lineTolerance: tolerance}
}

// Wrap surrounds content with the sentinel marker lines. Blank content
// is returned unchanged: there is nothing for the markers to protect.
func Wrap(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	return StartMarker + "\n" + content + "\n" + EndMarker
}

// Unwrap strips sentinel marker lines from content and trims the
// surrounding whitespace left behind. Content without markers only gets
// the trim.
func Unwrap(content string) string {
	if content == "" {
		return content
	}
	content = startMarkerRe.ReplaceAllString(content, "")
	content = endMarkerRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// Verify compares wrapped original content against the translated text
// returned by the model. Both sides have their markers stripped before
// comparison. Marker absence alone never fails the verdict; every other
// finding counts as critical, and a verdict with critical findings still
// passes if the accumulated confidence stays at or above PassConfidence.
func (v *Validator) Verify(original, translated string) Verdict {
	var issues []string
	confidence := 1.0

	hasMarkers := strings.Contains(translated, StartMarker) &&
		strings.Contains(translated, EndMarker)
	if !hasMarkers {
		issues = append(issues, "integrity markers missing in translated content "+warningSuffix)
		confidence -= markerPenalty
	}

	origClean := Unwrap(original)
	transClean := Unwrap(translated)

	origLines := countLines(origClean)
	transLines := countLines(transClean)
	lineDiff := origLines - transLines
	if lineDiff < 0 {
		lineDiff = -lineDiff
	}
	maxAllowed := int(float64(origLines) * v.lineTolerance)
	if maxAllowed < 1 {
		maxAllowed = 1
	}
	if lineDiff > maxAllowed {
		issues = append(issues, fmt.Sprintf("line count difference too large: %d lines", lineDiff))
		confidence -= lineCountPenalty
	}

	structureIssues := compareStructure(origClean, transClean)
	issues = append(issues, structureIssues...)
	confidence -= structurePenalty * float64(len(structureIssues))

	fenceIssues := compareFences(origClean, transClean)
	issues = append(issues, fenceIssues...)
	confidence -= fencePenalty * float64(len(fenceIssues))

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	critical := 0
	for _, issue := range issues {
		if !strings.HasSuffix(issue, warningSuffix) {
			critical++
		}
	}

	return Verdict{
		Passed:        critical == 0 || confidence >= PassConfidence,
		Issues:        issues,
		Confidence:    confidence,
		LineCountDiff: lineDiff,
		HasMarkers:    hasMarkers,
	}
}

// compareStructure counts headers, table rows, links and images on both
// sides. Each category must match exactly; translation may not merge,
// drop or invent structural elements.
func compareStructure(original, translated string) []string {
	var issues []string
	categories := []struct {
		name string
		re   *regexp.Regexp
	}{
		{"header", headerRe},
		{"table row", tableRowRe},
		{"link", linkRe},
		{"image", imageRe},
	}
	for _, c := range categories {
		origCount := len(c.re.FindAllStringIndex(original, -1))
		transCount := len(c.re.FindAllStringIndex(translated, -1))
		if origCount != transCount {
			issues = append(issues, fmt.Sprintf("%s count mismatch: original %d, translated %d",
				c.name, origCount, transCount))
		}
	}
	return issues
}

// compareFences counts code fence markers on both sides. A count
// mismatch and an odd (unterminated) count on either side are each
// separate findings.
func compareFences(original, translated string) []string {
	var issues []string
	origCount := len(fenceRe.FindAllStringIndex(original, -1))
	transCount := len(fenceRe.FindAllStringIndex(translated, -1))
	if origCount != transCount {
		issues = append(issues, fmt.Sprintf("code fence count mismatch: original %d, translated %d",
			origCount, transCount))
	}
	if origCount%2 != 0 {
		issues = append(issues, "original content has unclosed code block")
	}
	if transCount%2 != 0 {
		issues = append(issues, "translated content has unclosed code block")
	}
	return issues
}

// countLines counts lines the way text editors do: a trailing newline
// does not start an extra line, and empty content has zero lines.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
