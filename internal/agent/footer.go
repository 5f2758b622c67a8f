package agent

import (
	"regexp"
	"strings"
)

// footerRe matches the "Sources:" footer the synthesis prompt asks for.
// Case-insensitive, and the capture spans to the end of the answer.
var footerRe = regexp.MustCompile(`(?is)sources:\s*(.+)`)

// ExtractSources splits an answer into its body and the source list from
// its footer. The footer line and any "---" delimiter preceding it are
// removed from the returned body. Sources are comma-separated; empties are
// dropped and duplicates removed, keeping first-seen order. An answer with
// no footer comes back unchanged with no sources.
func ExtractSources(answer string) (string, []string) {
	loc := footerRe.FindStringSubmatchIndex(answer)
	if loc == nil {
		return answer, nil
	}

	footer := answer[loc[2]:loc[3]]
	clean := strings.TrimRight(answer[:loc[0]], " \t\n")
	clean = strings.TrimSuffix(clean, "---")
	clean = strings.TrimRight(clean, " \t\n")

	var sources []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(footer, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		// The prompt tells the model to write "none" when no files were used.
		if strings.EqualFold(part, "none") {
			continue
		}
		seen[part] = true
		sources = append(sources, part)
	}
	return clean, sources
}
