package orchestrator

import (
	"regexp"
	"strings"
)

// directivePrefix marks an embedded command in generated text. Matching is
// case-insensitive and tolerates leading whitespace on the line.
const directivePrefix = "RUN_COMMAND:"

// Scan limits guard against pathological generated text.
const (
	maxDirectiveScanBytes = 1 << 20
	maxDirectives         = 100
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// ExtractDirectives finds embedded command directives in generated text.
// It returns the trimmed commands in source order and the text with the
// matched lines removed and runs of three or more newlines collapsed to
// exactly two. Blank commands are discarded. Pure function.
func ExtractDirectives(text string) ([]string, string) {
	if text == "" || len(text) > maxDirectiveScanBytes {
		return nil, text
	}

	var commands []string
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(commands) < maxDirectives && hasDirectivePrefix(trimmed) {
			cmd := strings.TrimSpace(trimmed[len(directivePrefix):])
			if cmd != "" {
				commands = append(commands, cmd)
			}
			continue
		}
		kept = append(kept, line)
	}
	if len(commands) == 0 {
		return nil, text
	}

	cleaned := collapseNewlines(strings.Join(kept, "\n"))
	return commands, cleaned
}

func hasDirectivePrefix(line string) bool {
	return len(line) >= len(directivePrefix) &&
		strings.EqualFold(line[:len(directivePrefix)], directivePrefix)
}

// collapseNewlines squeezes runs of 3+ newlines down to a blank line.
func collapseNewlines(text string) string {
	return excessNewlines.ReplaceAllString(text, "\n\n")
}
