package prompts

import (
	"fmt"
	"strings"

	"github.com/blueprintlab/blueprintd/internal/session"
)

// BlueprintSystem is the system-role instruction for full blueprint
// generation. It sets the consultant persona and the document contract.
const BlueprintSystem = `You are a senior automation consultant producing an implementation
blueprint for a prospective client. Write in clear, confident prose aimed at a
non-technical business owner. Never mention that you are a language model.
Output markdown only.`

// companyContext describes the offering so generated blueprints recommend
// services we can actually deliver.
const companyContext = `## About the provider
We design and build workflow automations for small and mid-size businesses:
system integrations, document processing, notification pipelines, and
reporting. Typical engagements run two to six weeks.`

// pricingContext keeps generated estimates inside the real price bands.
const pricingContext = `## Pricing guidance
- Discovery and blueprint refinement: included
- Single-workflow automation: from $2,500
- Multi-system integration: from $6,000
- Ongoing support: monthly retainer, optional
Do not quote exact totals; give ranges and note that a formal quote follows.`

// technicalContext steers tool recommendations toward the supported stack.
const technicalContext = `## Technical guidance
Prefer the client's existing tools where possible. Common building blocks:
webhooks, scheduled jobs, spreadsheet/ERP APIs, e-signature APIs, email and
messaging APIs. Flag any tool the client named that has no usable API.`

// blueprintTemplate is the document skeleton the model must fill in.
const blueprintTemplate = `## Required document sections
1. **Summary** — two or three sentences describing the automation.
2. **Current workflow** — restate the client's process and its pain points.
3. **Proposed design** — numbered implementation steps, each one concrete
   action (this section is rendered as a process diagram, so keep steps
   atomic and ordered).
4. **Tools and integrations** — what connects to what.
5. **Effort and investment** — a range, per the pricing guidance.
6. **Next steps** — how the client proceeds.`

// BlueprintPrompt builds the full generation prompt from the intake
// snapshot and the clarification transcript. The transcript is formatted
// as "sender: content" lines; pass nil when no conversation happened.
func BlueprintPrompt(intake session.Intake, transcript []session.Message) string {
	var sb strings.Builder

	sb.WriteString(companyContext)
	sb.WriteString("\n\n")
	sb.WriteString(pricingContext)
	sb.WriteString("\n\n")
	sb.WriteString(technicalContext)
	sb.WriteString("\n\n")
	sb.WriteString(blueprintTemplate)
	sb.WriteString("\n\n## Client intake\n")
	fmt.Fprintf(&sb, "- Goal: %s\n", intake.Goal)
	fmt.Fprintf(&sb, "- Current workflow: %s\n", intake.Workflow)
	fmt.Fprintf(&sb, "- Tools in use: %s\n", intake.Tools)
	fmt.Fprintf(&sb, "- Pain points: %s\n", intake.PainPoints)

	if len(transcript) > 0 {
		sb.WriteString("\n## Clarification conversation\n")
		for _, m := range transcript {
			fmt.Fprintf(&sb, "%s: %s\n", m.Sender, m.Content)
		}
	}

	sb.WriteString("\nProduce the blueprint document now.")
	return sb.String()
}
