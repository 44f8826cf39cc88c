package splitter

import "strings"

// boundary classifies line indexes of a document as safe or unsafe split
// points. Fence state is precomputed once so repeated queries while
// searching for a cut stay cheap on large documents.
type boundary struct {
	lines []string

	// fenceOpen[i] reports whether line i sits inside an unterminated
	// ``` or ~~~ block, judged by marker parity over lines[0:i].
	fenceOpen []bool
}

func newBoundary(lines []string) *boundary {
	open := make([]bool, len(lines)+1)
	backticks, tildes := 0, 0
	for i, line := range lines {
		open[i] = backticks%2 == 1 || tildes%2 == 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			backticks++
		} else if strings.HasPrefix(trimmed, "~~~") {
			tildes++
		}
	}
	open[len(lines)] = backticks%2 == 1 || tildes%2 == 1
	return &boundary{lines: lines, fenceOpen: open}
}

// IsSafeSplitPoint reports whether starting a new chunk at index keeps
// every Markdown structure intact. Index len(lines) (end of document) is
// always safe.
func IsSafeSplitPoint(lines []string, index int) bool {
	return newBoundary(lines).safeAt(index)
}

// safeAt applies the classification rules in priority order: structural
// containment (code, table, list, blockquote, link reference) always
// vetoes; then blank-line separation, headings, horizontal rules and
// section boundaries approve; then heading-adjacency and paragraph
// continuation veto; anything left is safe.
func (b *boundary) safeAt(i int) bool {
	if i >= len(b.lines) {
		return true
	}
	if b.inCodeBlock(i) {
		return false
	}
	if b.inTable(i) {
		return false
	}
	if b.inListContinuation(i) {
		return false
	}
	if b.inBlockquote(i) {
		return false
	}
	if b.inLinkReference(i) {
		return false
	}

	cur := strings.TrimSpace(b.lines[i])

	// A line right after a blank line starts fresh context.
	if i > 0 && strings.TrimSpace(b.lines[i-1]) == "" {
		return true
	}
	// A heading starts a new section, unless the line is really the
	// underline half of a setext heading.
	if strings.HasPrefix(cur, "#") && !b.isSetextUnderline(i) {
		return true
	}
	if isHorizontalRule(cur) {
		return true
	}
	if b.isSectionBoundary(i) {
		return true
	}
	// Never separate a heading from its first body line.
	if i > 0 {
		prev := strings.TrimSpace(b.lines[i-1])
		if strings.HasPrefix(prev, "#") || b.isSetextUnderline(i-1) {
			return false
		}
	}
	if b.isParagraphContinuation(i) {
		return false
	}
	return true
}

// inCodeBlock reports whether line i belongs to a fenced block, or to an
// indented code block when the line itself is indented by four spaces or
// a tab.
func (b *boundary) inCodeBlock(i int) bool {
	if b.fenceOpen[i] {
		return true
	}
	line := b.lines[i]
	if (strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")) && strings.TrimSpace(line) != "" {
		return b.inIndentedCode(i)
	}
	return false
}

// inIndentedCode looks two lines either side of i and reports whether at
// least two non-blank lines in that window are indented like code. A
// lone indented line is more likely a list continuation than code.
func (b *boundary) inIndentedCode(i int) bool {
	indented := 0
	for j := i - 2; j <= i+2; j++ {
		if j < 0 || j >= len(b.lines) {
			continue
		}
		line := b.lines[j]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			indented++
		}
	}
	return indented >= 2
}

// inTable reports whether line i is part of a pipe table: the line
// contains a pipe and the surrounding five lines either side hold a
// separator row plus at least two data rows.
func (b *boundary) inTable(i int) bool {
	if !strings.Contains(strings.TrimSpace(b.lines[i]), "|") {
		return false
	}
	separator := false
	rows := 0
	for j := i - 5; j <= i+5; j++ {
		if j < 0 || j >= len(b.lines) {
			continue
		}
		line := strings.TrimSpace(b.lines[j])
		if line == "" {
			continue
		}
		if isTableSeparator(line) {
			separator = true
		} else if strings.Contains(line, "|") && isTableRow(line) {
			rows++
		}
	}
	return separator && rows >= 2
}

// isTableSeparator reports whether line is a table alignment row such as
// "|---|:---:|": every pipe-delimited segment is dashes with optional
// colons.
func isTableSeparator(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "|") || !strings.Contains(line, "-") {
		return false
	}
	segments := strings.Fields(strings.ReplaceAll(line, "|", " "))
	if len(segments) == 0 {
		return false
	}
	for _, seg := range segments {
		if !strings.Contains(seg, "-") {
			return false
		}
		for _, r := range seg {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

// isTableRow reports whether line looks like a table data row: at least
// two pipes with some non-pipe content between them.
func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	if strings.Count(line, "|") < 2 {
		return false
	}
	content := strings.NewReplacer("|", "", " ", "", "\t", "").Replace(line)
	return content != ""
}

// inListContinuation reports whether line i continues a list begun on a
// nearby earlier line: scanning up to nine lines back (skipping blanks),
// the nearest list item either out-indents line i or matches its indent
// while line i is itself a list item. A non-list line shallower than
// line i ends the list context.
func (b *boundary) inListContinuation(i int) bool {
	if i == 0 {
		return false
	}
	curIndent := lineIndent(b.lines[i])
	for j := i - 1; j >= 0 && j > i-10; j-- {
		if strings.TrimSpace(b.lines[j]) == "" {
			continue
		}
		if isListItem(b.lines[j]) {
			prevIndent := lineIndent(b.lines[j])
			if curIndent > prevIndent {
				return true
			}
			if curIndent == prevIndent && isListItem(b.lines[i]) {
				return true
			}
			break
		}
		if lineIndent(b.lines[j]) < curIndent {
			break
		}
	}
	return false
}

// isListItem reports whether line is a bullet ("- ", "* ", "+ ") or
// ordered ("1. ") list item.
func isListItem(line string) bool {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "- ") || strings.HasPrefix(s, "* ") || strings.HasPrefix(s, "+ ") {
		return true
	}
	if len(s) > 2 {
		if sp := strings.IndexByte(s, ' '); sp > 0 {
			prefix := s[:sp]
			if strings.HasSuffix(prefix, ".") && isDigits(prefix[:len(prefix)-1]) {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// inBlockquote reports whether line i is a quote line or a non-heading
// continuation directly following quote lines within four lines back.
func (b *boundary) inBlockquote(i int) bool {
	cur := strings.TrimSpace(b.lines[i])
	if strings.HasPrefix(cur, ">") {
		return true
	}
	for j := i - 1; j >= 0 && j > i-5; j-- {
		prev := strings.TrimSpace(b.lines[j])
		if prev == "" {
			continue
		}
		if !strings.HasPrefix(prev, ">") {
			break
		}
		if cur != "" && !strings.HasPrefix(cur, "#") {
			return true
		}
	}
	return false
}

// inLinkReference reports whether a reference-style link definition
// ("[label]: url") sits within two lines of i in either direction.
func (b *boundary) inLinkReference(i int) bool {
	for j := i - 2; j <= i+2; j++ {
		if j < 0 || j >= len(b.lines) {
			continue
		}
		line := strings.TrimSpace(b.lines[j])
		if strings.HasPrefix(line, "[") && strings.Contains(line, "]:") {
			return true
		}
	}
	return false
}

// isSetextUnderline reports whether line i is the "===" or "---"
// underline of a setext heading, meaning the previous line is non-blank
// text rather than another heading.
func (b *boundary) isSetextUnderline(i int) bool {
	if i <= 0 || i >= len(b.lines) {
		return false
	}
	cur := strings.TrimSpace(b.lines[i])
	prev := strings.TrimSpace(b.lines[i-1])
	if cur == "" || prev == "" || strings.HasPrefix(prev, "#") {
		return false
	}
	return allSame(cur, '=') || allSame(cur, '-')
}

func allSame(s string, marker rune) bool {
	for _, r := range s {
		if r != marker {
			return false
		}
	}
	return s != ""
}

// isHorizontalRule reports whether line is a thematic break: at least
// three of the same marker (-, * or _), optionally space separated.
func isHorizontalRule(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 3 {
		return false
	}
	return isRuleOf(line, '-') || isRuleOf(line, '*') || isRuleOf(line, '_')
}

func isRuleOf(line string, marker rune) bool {
	count := 0
	for _, r := range line {
		switch r {
		case marker:
			count++
		case ' ':
		default:
			return false
		}
	}
	return count >= 3
}

// isSectionBoundary reports whether line i opens a new document section:
// an HTML comment, or the front matter delimiter on the first line.
func (b *boundary) isSectionBoundary(i int) bool {
	if i >= len(b.lines) {
		return true
	}
	cur := strings.TrimSpace(b.lines[i])
	if strings.HasPrefix(cur, "<!--") {
		return true
	}
	return cur == "---" && i == 0
}

// isParagraphContinuation reports whether lines i-1 and i are both plain
// prose, meaning a split between them would tear a paragraph in half.
func (b *boundary) isParagraphContinuation(i int) bool {
	if i == 0 {
		return false
	}
	cur := strings.TrimSpace(b.lines[i])
	prev := strings.TrimSpace(b.lines[i-1])
	if cur == "" || prev == "" {
		return false
	}
	if isSpecialLine(prev) || isSpecialLine(cur) {
		return false
	}
	return true
}

// isSpecialLine reports whether a trimmed line opens a non-paragraph
// construct: heading, quote, list item or horizontal rule.
func isSpecialLine(s string) bool {
	return strings.HasPrefix(s, "#") ||
		strings.HasPrefix(s, ">") ||
		strings.HasPrefix(s, "- ") ||
		strings.HasPrefix(s, "* ") ||
		strings.HasPrefix(s, "+ ") ||
		isListItem(s) ||
		isHorizontalRule(s)
}

// lineIndent returns the leading whitespace width of line, counting a
// tab as four columns.
func lineIndent(line string) int {
	indent := 0
	for _, r := range line {
		switch r {
		case ' ':
			indent++
		case '\t':
			indent += 4
		default:
			return indent
		}
	}
	return indent
}
