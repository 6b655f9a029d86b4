package diagram

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtract_NumberedList(t *testing.T) {
	text := "1. Collect form data\n2. Validate with OpenAI\n3. Send confirmation email"

	d := Extract(text)
	if d.Fallback {
		t.Fatal("numbered list triggered fallback")
	}
	if len(d.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(d.Steps))
	}

	wantTypes := []StepType{StepProcess, StepDecision, StepEnd}
	for i, want := range wantTypes {
		if d.Steps[i].Type != want {
			t.Errorf("step %d type = %s, want %s", i, d.Steps[i].Type, want)
		}
	}
	if d.Steps[0].Label != "Collect form data" {
		t.Errorf("step 0 label = %q", d.Steps[0].Label)
	}
}

func TestExtract_BulletedList(t *testing.T) {
	text := "The workflow:\n\n- Import the spreadsheet\n- Reconcile the totals\n- Archive the report"

	d := Extract(text)
	if len(d.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(d.Steps))
	}
	if d.Steps[1].Label != "Reconcile the totals" {
		t.Errorf("step 1 label = %q", d.Steps[1].Label)
	}
}

func TestExtract_NumberedWinsOverBulleted(t *testing.T) {
	text := "1. Numbered step one\n2. Numbered step two\n\nNotes:\n\n- Bulleted aside\n- Another aside"

	d := Extract(text)
	if len(d.Steps) != 2 {
		t.Fatalf("steps = %d, want 2 (numbered family only)", len(d.Steps))
	}
	for _, s := range d.Steps {
		if strings.Contains(s.Label, "aside") {
			t.Errorf("bulleted line leaked into numbered extraction: %q", s.Label)
		}
	}
}

func TestExtract_StepPrefixLines(t *testing.T) {
	text := "Step 1: Gather the inputs\nStep 2: Transform the records\nStep 3: Publish results"

	d := Extract(text)
	if d.Fallback {
		t.Fatal("Step-prefixed lines triggered fallback")
	}
	if len(d.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(d.Steps))
	}
	if d.Steps[0].Label != "Gather the inputs" {
		t.Errorf("step 0 label = %q", d.Steps[0].Label)
	}
}

func TestExtract_LineLengthFilter(t *testing.T) {
	long := strings.Repeat("x", 120)
	text := fmt.Sprintf("1. ok\n2. Keep this reasonable step\n3. %s", long)

	d := Extract(text)
	if len(d.Steps) != 1 {
		t.Fatalf("steps = %d, want 1 (short and long lines dropped)", len(d.Steps))
	}
	if d.Steps[0].Label != "Keep this reasonable step" {
		t.Errorf("surviving label = %q", d.Steps[0].Label)
	}
}

func TestExtract_CapsAtTenSteps(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&sb, "%d. Handle stage number %d\n", i, i)
	}

	d := Extract(sb.String())
	if len(d.Steps) != 10 {
		t.Errorf("steps = %d, want cap of 10", len(d.Steps))
	}
}

func TestExtract_FallbackSynthesis(t *testing.T) {
	d := Extract("We should automate the reporting and send notifications when it finishes.")
	if !d.Fallback {
		t.Fatal("prose without step patterns should fall back")
	}
	if len(d.Steps) < 3 || len(d.Steps) > 7 {
		t.Fatalf("fallback steps = %d, want 3..7", len(d.Steps))
	}
	if d.Steps[0].Type != StepStart || d.Steps[len(d.Steps)-1].Type != StepEnd {
		t.Error("fallback steps not bracketed by start/end")
	}

	var labels []string
	for _, s := range d.Steps {
		labels = append(labels, s.Label)
	}
	joined := strings.Join(labels, " | ")
	if !strings.Contains(joined, "workflow") || !strings.Contains(joined, "notifications") {
		t.Errorf("themes not reflected in fallback labels: %s", joined)
	}
}

func TestExtract_FallbackWithoutThemes(t *testing.T) {
	d := Extract("nothing here resembles any known theme")
	if !d.Fallback {
		t.Fatal("expected fallback")
	}
	if len(d.Steps) != 3 {
		t.Errorf("themeless fallback steps = %d, want 3", len(d.Steps))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want StepType
	}{
		{"Check if the invoice is overdue", StepDecision},
		{"Validate with OpenAI", StepDecision},
		{"Decide whether to escalate", StepDecision},
		{"Receive the webhook payload", StepStart},
		{"Begin the intake flow", StepStart},
		{"Finalize the ledger entry", StepEnd},
		{"Send confirmation email", StepEnd},
		{"Transform the records", StepProcess},
		// Decision rule outranks the start rule.
		{"Start by checking the queue", StepDecision},
	}
	for _, tt := range tests {
		if got := Classify(tt.line); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.line, got, tt.want)
		}
	}
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**Import** the `data`", "Import the data"},
		{"  spaced    out   words ", "spaced out words"},
		{"wrap [this] (thing)", "wrap this thing"},
	}
	for _, tt := range tests {
		if got := CleanLabel(tt.in); got != tt.want {
			t.Errorf("CleanLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanLabel_Truncates(t *testing.T) {
	got := CleanLabel(strings.Repeat("a", 80))
	if len(got) > 60 {
		t.Errorf("label length = %d, want <= 60", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated label missing ellipsis: %q", got)
	}
}

func TestCleanLabel_TruncatesOnRuneBoundary(t *testing.T) {
	// Two-byte runes put a continuation byte exactly at the cut point.
	got := CleanLabel(strings.Repeat("é", 40))
	if !utf8.ValidString(got) {
		t.Errorf("truncated label is not valid UTF-8: %q", got)
	}
	if len(got) > 60 {
		t.Errorf("label length = %d, want <= 60", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated label missing ellipsis: %q", got)
	}
}

func TestMermaid_Shapes(t *testing.T) {
	steps := []Step{
		{Label: "Receive order", Type: StepStart},
		{Label: "Check inventory", Type: StepDecision},
		{Label: "Pack items", Type: StepProcess},
		{Label: "Complete", Type: StepEnd},
	}

	m := Mermaid(steps)
	for _, want := range []string{
		"flowchart TD",
		"S0([Receive order])",
		"S1{Check inventory}",
		"S2[Pack items]",
		"S3([Complete])",
		"S0 --> S1",
		"S1 -->|Yes| S2",
		"S1 -->|No| S3",
		"S2 --> S3",
	} {
		if !strings.Contains(m, want) {
			t.Errorf("markup missing %q:\n%s", want, m)
		}
	}
}

func TestMermaid_TerminalDecisionHasNoBranches(t *testing.T) {
	steps := []Step{
		{Label: "Do the work", Type: StepProcess},
		{Label: "Verify output", Type: StepDecision},
	}

	m := Mermaid(steps)
	if strings.Contains(m, "|Yes|") || strings.Contains(m, "|No|") {
		t.Errorf("terminal decision emitted branch edges:\n%s", m)
	}
	if !strings.Contains(m, "S0 --> S1") {
		t.Errorf("missing sequential edge:\n%s", m)
	}
}
