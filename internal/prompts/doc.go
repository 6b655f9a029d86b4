// Package prompts contains all provider prompt templates used internally
// by blueprintd.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, benefit from compile-time
// embedding, and can be validated by tests. User-facing configuration lives
// in config.yaml; this package holds the instructions we send to models
// (blueprint generation, clarifying questions, state transition copy).
//
// Convention: each prompt category gets its own file (blueprint.go,
// question.go, states.go) with an exported function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
