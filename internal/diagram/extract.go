// Package diagram derives a best-effort process diagram from generated
// blueprint prose. Extraction is heuristic by contract: it looks for
// step-like lines, types them with keyword rules, and renders a mermaid
// flowchart. It never fails: when nothing usable is found it synthesizes
// a generic diagram instead.
package diagram

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// StepType classifies a workflow step for diagram rendering.
type StepType string

// Step types, each with its own node shape.
const (
	StepStart    StepType = "start"
	StepProcess  StepType = "process"
	StepDecision StepType = "decision"
	StepEnd      StepType = "end"
)

// Step is one node in the extracted workflow. Steps are ephemeral:
// recomputed from blueprint text on demand, never persisted.
type Step struct {
	Label string   `json:"label"`
	Type  StepType `json:"type"`
}

// Diagram is the extraction result.
type Diagram struct {
	Steps    []Step `json:"steps"`
	Markup   string `json:"diagram_markup"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Extraction limits.
const (
	maxSteps    = 10
	minLineLen  = 5
	maxLineLen  = 100
	maxLabelLen = 60
)

// Keyword rules, checked in order; the first match wins.
var (
	decisionKeywords = []string{"if ", "whether", "check", "validate", "verify", "decide", "choose", "determine"}
	startKeywords    = []string{"start", "begin", "initiate", "trigger", "receive"}
	endKeywords      = []string{"complete", "finish", "end", "finalize", "send confirmation"}
)

// stepLineRe matches "Step N:" / "Step N." lines, the last pattern family
// tried after markdown numbered and bulleted lists.
var stepLineRe = regexp.MustCompile(`(?im)^\s*step\s+\d+\s*[:.]\s*(.+)$`)

// markdown is the shared parser for list detection. No extensions: we
// only care about core list structure.
var markdown = goldmark.New()

// Extract converts free-form text into typed workflow steps and mermaid
// markup. Any internal failure degrades to a fixed fallback diagram;
// extraction never propagates an error to the caller.
func Extract(input string) (d Diagram) {
	defer func() {
		if r := recover(); r != nil {
			d = errorDiagram()
		}
	}()

	lines := detectStepLines(input)

	var steps []Step
	for _, line := range lines {
		label := CleanLabel(line)
		if label == "" {
			continue
		}
		steps = append(steps, Step{Label: label, Type: Classify(line)})
		if len(steps) == maxSteps {
			break
		}
	}

	if len(steps) == 0 {
		steps = synthesizeSteps(input)
		return Diagram{Steps: steps, Markup: Mermaid(steps), Fallback: true}
	}

	return Diagram{Steps: steps, Markup: Mermaid(steps)}
}

// detectStepLines tries the pattern families in fixed order - numbered
// list items, bulleted items, "Step N:" lines - and returns the raw step
// text from the first family with any matches.
func detectStepLines(input string) []string {
	src := []byte(input)
	root := markdown.Parser().Parse(text.NewReader(src))

	var numbered, bulleted []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		list, ok := n.(*ast.List)
		if !ok {
			return ast.WalkContinue, nil
		}
		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			line := itemText(item, src)
			if len(line) < minLineLen || len(line) > maxLineLen {
				continue
			}
			if list.IsOrdered() {
				numbered = append(numbered, line)
			} else {
				bulleted = append(bulleted, line)
			}
		}
		// Lists inside list items would double-count their parents.
		return ast.WalkSkipChildren, nil
	})

	if len(numbered) > 0 {
		return numbered
	}
	if len(bulleted) > 0 {
		return bulleted
	}

	var stepLines []string
	for _, m := range stepLineRe.FindAllStringSubmatch(input, -1) {
		line := strings.TrimSpace(m[1])
		if len(line) < minLineLen || len(line) > maxLineLen {
			continue
		}
		stepLines = append(stepLines, line)
	}
	return stepLines
}

// itemText flattens a list item's first-level text content into one line.
func itemText(item ast.Node, src []byte) string {
	var sb strings.Builder
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case ast.KindTextBlock, ast.KindParagraph, ast.KindHeading:
			sb.Write(child.Text(src))
		}
	}
	return strings.TrimSpace(sb.String())
}

// Classify types a step line. Rules are checked in order and the first
// match wins: decision keywords anywhere, start keywords at the beginning,
// end keywords anywhere, otherwise process.
func Classify(line string) StepType {
	lower := strings.ToLower(line)

	for _, kw := range decisionKeywords {
		if strings.Contains(lower, kw) {
			return StepDecision
		}
	}
	for _, kw := range startKeywords {
		if strings.HasPrefix(lower, kw) {
			return StepStart
		}
	}
	for _, kw := range endKeywords {
		if strings.Contains(lower, kw) {
			return StepEnd
		}
	}
	return StepProcess
}

// labelStripRe removes characters that would break mermaid node syntax,
// plus markdown emphasis and heading markers.
var labelStripRe = regexp.MustCompile("[\"'`*_#\\[\\](){}<>]")

// spaceRe collapses whitespace runs.
var spaceRe = regexp.MustCompile(`\s+`)

// CleanLabel normalizes a raw step line into diagram-safe label text:
// markdown markers and syntax-breaking characters stripped, whitespace
// collapsed, truncated to 60 chars with an ellipsis.
func CleanLabel(line string) string {
	label := labelStripRe.ReplaceAllString(line, "")
	label = spaceRe.ReplaceAllString(label, " ")
	label = strings.TrimSpace(label)

	if len(label) > maxLabelLen {
		// Back off to a rune boundary so the cut never produces invalid UTF-8.
		cut := maxLabelLen - 3
		for cut > 0 && !utf8.RuneStart(label[cut]) {
			cut--
		}
		label = strings.TrimSpace(label[:cut]) + "..."
	}
	return label
}

// Fallback synthesis themes, sniffed from the text when no step pattern
// matched at all.
var fallbackThemes = []struct {
	keyword string
	label   string
}{
	{"analy", "Analyze incoming data"},
	{"automat", "Run automated workflow"},
	{"integrat", "Sync connected systems"},
	{"notif", "Send notifications"},
}

// synthesizeSteps builds 3-7 generic steps from theme keywords, bracketed
// by fixed Start/Complete steps.
func synthesizeSteps(input string) []Step {
	lower := strings.ToLower(input)

	steps := []Step{{Label: "Start", Type: StepStart}}
	for _, theme := range fallbackThemes {
		if strings.Contains(lower, theme.keyword) {
			steps = append(steps, Step{Label: theme.label, Type: StepProcess})
		}
	}
	if len(steps) == 1 {
		steps = append(steps, Step{Label: "Process request", Type: StepProcess})
	}
	steps = append(steps, Step{Label: "Complete", Type: StepEnd})
	return steps
}

// errorDiagram is the fixed diagram returned when extraction itself
// fails. Four nodes, no dependence on the input.
func errorDiagram() Diagram {
	steps := []Step{
		{Label: "Start", Type: StepStart},
		{Label: "Process", Type: StepProcess},
		{Label: "Automate", Type: StepProcess},
		{Label: "Complete", Type: StepEnd},
	}
	return Diagram{Steps: steps, Markup: Mermaid(steps), Fallback: true}
}
