package prompts

import (
	"fmt"
	"strings"

	"github.com/blueprintlab/blueprintd/internal/session"
)

// TopicPriority is the fixed order in which clarification topics are
// raised. The first topic not yet covered is the subject of the next
// question.
var TopicPriority = []string{
	"goal",
	"workflow",
	"tools",
	"pain_points",
	"volume",
}

// FallbackQuestions is the canned question per topic, used verbatim when
// question generation fails. Keyed by TopicPriority entries.
var FallbackQuestions = map[string]string{
	"goal":        "What outcome would make this automation a clear win for you?",
	"workflow":    "Can you walk me through the current process, step by step?",
	"tools":       "Which tools or systems does this process touch today?",
	"pain_points": "Where does the current process cost you the most time?",
	"volume":      "Roughly how often does this process run - daily, weekly, monthly?",
}

// QuestionSystem is the system instruction for clarifying-question
// generation. Kept short; this call runs on a small token budget.
const QuestionSystem = `You are an automation consultant gathering requirements. Ask exactly
one short clarifying question (20 words or fewer). No preamble, no list, just
the question.`

// NextTopic returns the highest-priority topic not in asked, or "" when
// every topic is covered.
func NextTopic(asked []string) string {
	covered := make(map[string]bool, len(asked))
	for _, t := range asked {
		covered[t] = true
	}
	for _, t := range TopicPriority {
		if !covered[t] {
			return t
		}
	}
	return ""
}

// FallbackQuestion returns the canned question for the next uncovered
// topic. When all topics are covered it falls back to the volume question.
func FallbackQuestion(asked []string) string {
	topic := NextTopic(asked)
	if topic == "" {
		topic = "volume"
	}
	return FallbackQuestions[topic]
}

// QuestionPrompt builds the user-role prompt for generating the next
// clarifying question about the given topic.
func QuestionPrompt(intake session.Intake, topic string) string {
	var sb strings.Builder

	sb.WriteString("Client intake so far:\n")
	fmt.Fprintf(&sb, "- Goal: %s\n", intake.Goal)
	fmt.Fprintf(&sb, "- Current workflow: %s\n", intake.Workflow)
	fmt.Fprintf(&sb, "- Tools in use: %s\n", intake.Tools)
	fmt.Fprintf(&sb, "- Pain points: %s\n", intake.PainPoints)
	fmt.Fprintf(&sb, "\nAsk one clarifying question about the client's %s.\n", strings.ReplaceAll(topic, "_", " "))

	return sb.String()
}
