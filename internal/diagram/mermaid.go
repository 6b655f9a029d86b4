package diagram

import (
	"fmt"
	"strings"
)

// Mermaid renders typed steps as a top-down flowchart. Node shapes map
// from step type: stadium for start, rectangle for process, diamond for
// decision, stadium for end. A non-terminal decision node branches: a
// Yes edge to the next step and, when one exists, a No edge to the step
// after that.
func Mermaid(steps []Step) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	for i, step := range steps {
		fmt.Fprintf(&sb, "    %s\n", nodeDecl(i, step))
	}

	for i := 0; i < len(steps)-1; i++ {
		if steps[i].Type == StepDecision {
			fmt.Fprintf(&sb, "    S%d -->|Yes| S%d\n", i, i+1)
			if i+2 < len(steps) {
				fmt.Fprintf(&sb, "    S%d -->|No| S%d\n", i, i+2)
			}
			continue
		}
		fmt.Fprintf(&sb, "    S%d --> S%d\n", i, i+1)
	}

	return sb.String()
}

func nodeDecl(i int, step Step) string {
	switch step.Type {
	case StepStart, StepEnd:
		return fmt.Sprintf("S%d([%s])", i, step.Label)
	case StepDecision:
		return fmt.Sprintf("S%d{%s}", i, step.Label)
	default:
		return fmt.Sprintf("S%d[%s]", i, step.Label)
	}
}
