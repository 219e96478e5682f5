package orchestrator

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestExtractDirectives(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCommands []string
		wantText     string
	}{
		{
			name:         "no directives",
			text:         "Here is your landing page.",
			wantCommands: nil,
			wantText:     "Here is your landing page.",
		},
		{
			name:         "single directive",
			text:         "Setting up.\nRUN_COMMAND: npm install\nDone.",
			wantCommands: []string{"npm install"},
			wantText:     "Setting up.\nDone.",
		},
		{
			name:         "case insensitive with leading whitespace",
			text:         "  run_command: npm run build\nRun_Command: npm test",
			wantCommands: []string{"npm run build", "npm test"},
			wantText:     "",
		},
		{
			name:         "order preserved",
			text:         "RUN_COMMAND: first\nmiddle\nRUN_COMMAND: second\nRUN_COMMAND: third",
			wantCommands: []string{"first", "second", "third"},
			wantText:     "middle",
		},
		{
			name:         "blank directive discarded but line removed",
			text:         "before\nRUN_COMMAND:\nRUN_COMMAND: real\nafter",
			wantCommands: []string{"real"},
			wantText:     "before\nafter",
		},
		{
			name:         "excess newlines collapsed",
			text:         "intro\n\nRUN_COMMAND: ls\n\n\nending",
			wantCommands: []string{"ls"},
			wantText:     "intro\n\nending",
		},
		{
			name:         "prefix mid-line is not a directive",
			text:         "use RUN_COMMAND: to embed commands",
			wantCommands: nil,
			wantText:     "use RUN_COMMAND: to embed commands",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commands, cleaned := ExtractDirectives(tt.text)
			if diff := cmp.Diff(tt.wantCommands, commands); diff != "" {
				t.Errorf("commands mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantText, cleaned)
		})
	}
}

func TestExtractDirectivesResidualInvariants(t *testing.T) {
	text := "a\n\n\n\nRUN_COMMAND: one\n\n\n\nb\nrun_command: two\n\n\n\n\nc"
	commands, cleaned := ExtractDirectives(text)

	assert.Len(t, commands, 2)
	for _, line := range strings.Split(cleaned, "\n") {
		assert.False(t, hasDirectivePrefix(strings.TrimSpace(line)),
			"residual line still carries directive prefix: %q", line)
	}
	assert.NotContains(t, cleaned, "\n\n\n")
}

func TestExtractDirectivesOversizedInput(t *testing.T) {
	text := strings.Repeat("x", maxDirectiveScanBytes+1) + "\nRUN_COMMAND: ls"
	commands, cleaned := ExtractDirectives(text)
	assert.Nil(t, commands)
	assert.Equal(t, text, cleaned)
}

func TestExtractDirectivesMatchCap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxDirectives+10; i++ {
		b.WriteString("RUN_COMMAND: echo hi\n")
	}
	commands, _ := ExtractDirectives(b.String())
	assert.Len(t, commands, maxDirectives)
}

func TestCollapseNewlines(t *testing.T) {
	assert.Equal(t, "a\n\nb", collapseNewlines("a\n\n\n\n\nb"))
	assert.Equal(t, "a\nb", collapseNewlines("a\nb"))
}
