package prompts

// ApologyLine is the fixed assistant reply when generation fails during a
// turn. Raw provider errors never reach the user; the turn degrades to
// this line and the conversation state is left untouched.
const ApologyLine = `I'm sorry - I hit a snag putting that together. Could you say that ` +
	`again, or give me a moment and try once more?`

// TimeoutPrompt is the standing nudge emitted when the user goes quiet.
// It never advances state; the caller decides whether to proceed.
const TimeoutPrompt = `Still with me? I can continue with what I have so far and draft your ` +
	`blueprint, or we can keep refining - just let me know.`

// TransitionMessages is the templated assistant copy appended when a
// conversation enters each state.
var TransitionMessages = map[string]string{
	"upsell": `Thanks - I have a good picture of your workflow now. Before I draft the ` +
		`blueprint, a couple of optional extras you might want to consider.`,
	"blueprint_generation": `Great. Give me a moment while I put your automation blueprint together - ` +
		`this usually takes under a minute.`,
	"blueprint_presentation": `Here's your automation blueprint. Have a look and tell me if you'd like ` +
		`me to adjust anything.`,
	"complete": `All done - thanks for working through this with me. You'll find the full ` +
		`blueprint above, and we'll follow up on next steps.`,
}

// StateInstructions is appended to the context prompt per state so the
// model answers in the right register for the current phase.
var StateInstructions = map[string]string{
	"clarification": `The conversation is in the requirements phase. Respond briefly to the ` +
		`client's last message, then ask at most one follow-up question.`,
	"upsell": `The conversation is in the offers phase. Acknowledge the client's reply. ` +
		`Do not pressure them; any offer is optional and declining changes nothing.`,
	"blueprint_presentation": `The blueprint has been presented. Answer questions about it concisely. ` +
		`If the client asks for changes, summarize what you would change.`,
}

// UpsellOffer is one optional secondary offer raised during the offers
// phase. Offers are independent; accepting, declining, or ignoring any of
// them never blocks blueprint generation.
type UpsellOffer struct {
	// Tag identifies the offer in message metadata.
	Tag string
	// Text is the assistant copy presenting the offer.
	Text string
}

// UpsellOffers is the fixed offer set, presented in order.
var UpsellOffers = []UpsellOffer{
	{
		Tag:  "consultation",
		Text: "Would you like a free 30-minute consultation call to walk through the blueprint together?",
	},
	{
		Tag:  "cost_estimate",
		Text: "I can include a ballpark cost estimate in the blueprint - want me to add that?",
	},
	{
		Tag:  "formal_quote",
		Text: "If you'd like a formal quote afterwards, I can have one prepared from the blueprint.",
	},
	{
		Tag:  "additional_workflow",
		Text: "Is there a second workflow you'd like mapped while we're at it?",
	},
}
