package generate

import (
	"strings"
	"unicode/utf8"
)

// summaryMaxLen bounds the derived summary.
const summaryMaxLen = 200

// fenceMarkers are artifacts models sometimes wrap whole responses in.
// Stripped only at the extremes of the text, never inside it.
var fenceMarkers = []string{"```markdown", "```", `"""`, "``", `""`}

// StripFences removes code-fence wrapping from a completion. Models
// occasionally return the entire document inside a fenced block even
// when asked for plain markdown.
func StripFences(text string) string {
	out := strings.TrimSpace(text)
	for _, marker := range fenceMarkers {
		if strings.HasPrefix(out, marker) {
			out = strings.TrimSpace(out[len(marker):])
			break
		}
	}
	for _, marker := range fenceMarkers {
		if strings.HasSuffix(out, marker) {
			out = strings.TrimSpace(out[:len(out)-len(marker)])
			break
		}
	}
	return out
}

// Summarize derives a one-paragraph summary from blueprint content: the
// first non-heading paragraph, truncated to 200 chars with an ellipsis.
func Summarize(content string) string {
	for _, para := range strings.Split(content, "\n\n") {
		var lines []string
		for _, line := range strings.Split(para, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		summary := strings.Join(lines, " ")
		if len(summary) > summaryMaxLen {
			// Back off to a rune boundary so the cut never produces invalid UTF-8.
			cut := summaryMaxLen - 3
			for cut > 0 && !utf8.RuneStart(summary[cut]) {
				cut--
			}
			summary = strings.TrimSpace(summary[:cut]) + "..."
		}
		return summary
	}
	return ""
}
