package kb

import (
	"fmt"
	"regexp"
	"strings"
)

// heading is one parsed markdown heading with its line offset.
type heading struct {
	line  int
	level int
	title string
}

var (
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	blankRunsRe = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)
	paragraphRe = regexp.MustCompile(`\n[ \t]*\n`)
)

// parseHeadings extracts all markdown headings in document order.
func parseHeadings(lines []string) []heading {
	var heads []heading
	for i, line := range lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			heads = append(heads, heading{
				line:  i,
				level: len(m[1]),
				title: strings.TrimSpace(m[2]),
			})
		}
	}
	return heads
}

// DocumentTitle returns the first level-1 heading of the document, or stem
// when the document has none.
func DocumentTitle(content, stem string) string {
	for _, h := range parseHeadings(strings.Split(content, "\n")) {
		if h.level == 1 {
			return h.title
		}
	}
	return stem
}

// SplitDocument splits markdown content into retrieval chunks.
//
// Sections are cut at level-2 and level-3 headings; each chunk is prefixed
// with the title of the nearest level-1 heading at or before the section
// start, so a chunk stays self-describing after it is separated from its
// document. Runs of three or more blank lines collapse to one. Documents
// with no headings at all fall back to blank-line-delimited paragraphs.
func SplitDocument(content string) []string {
	lines := strings.Split(content, "\n")
	heads := parseHeadings(lines)

	if len(heads) == 0 {
		return splitParagraphs(content)
	}

	type section struct {
		start int
		text  []string
	}
	var sections []section
	cur := section{start: 0}
	for i, line := range lines {
		if m := headingRe.FindStringSubmatch(line); m != nil && (len(m[1]) == 2 || len(m[1]) == 3) {
			sections = append(sections, cur)
			// The subsection title stays in the chunk body as plain text.
			cur = section{start: i, text: []string{strings.TrimSpace(m[2])}}
			continue
		}
		cur.text = append(cur.text, line)
	}
	sections = append(sections, cur)

	var chunks []string
	for _, s := range sections {
		body := strings.TrimSpace(collapseBlankRuns(strings.Join(s.text, "\n")))
		if body == "" {
			continue
		}
		if parent := parentHeading(heads, s.start); parent != "" {
			chunks = append(chunks, parent+"\n\n"+body)
		} else {
			chunks = append(chunks, body)
		}
	}

	if len(chunks) == 0 {
		return splitParagraphs(content)
	}
	return chunks
}

// parentHeading returns the title of the last level-1 heading at or before
// the given line, or "" when none precedes it.
func parentHeading(heads []heading, line int) string {
	parent := ""
	for _, h := range heads {
		if h.line > line {
			break
		}
		if h.level == 1 {
			parent = h.title
		}
	}
	return parent
}

func collapseBlankRuns(s string) string {
	return blankRunsRe.ReplaceAllString(s, "\n\n")
}

func splitParagraphs(content string) []string {
	var chunks []string
	for _, p := range paragraphRe.Split(content, -1) {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

// ChunkID returns the deterministic id for the i-th chunk of a document,
// derived from the filename stem. Stable ids make re-indexing idempotent.
func ChunkID(stem string, i int) string {
	return fmt.Sprintf("%s_%d", stem, i)
}
