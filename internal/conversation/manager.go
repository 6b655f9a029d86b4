package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blueprintlab/blueprintd/internal/cache"
	"github.com/blueprintlab/blueprintd/internal/config"
	"github.com/blueprintlab/blueprintd/internal/diagram"
	"github.com/blueprintlab/blueprintd/internal/events"
	"github.com/blueprintlab/blueprintd/internal/generate"
	"github.com/blueprintlab/blueprintd/internal/prompts"
	"github.com/blueprintlab/blueprintd/internal/session"
)

// Next-action hints returned with a turn result. The caller decides what
// to do with them; the manager has already applied any state change.
const (
	NextActionContinue = "continue"
	NextActionUpsell   = "transition_to_upsell"
	NextActionNone     = "none"
)

// Session metadata keys the manager owns.
const (
	metaGenerationStarted = "generation_started_at"
	metaAskedTopics       = "asked_topics"
)

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	AssistantText   string `json:"assistant_text"`
	State           State  `json:"conversation_state"`
	NextAction      string `json:"next_action"`
	ProgressPercent int    `json:"progress_percent"`
	Degraded        bool   `json:"degraded,omitempty"`
}

// Blueprint is the assembled generation result handed to the caller.
type Blueprint struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	Content       string         `json:"content"`
	Summary       string         `json:"summary"`
	Steps         []diagram.Step `json:"steps"`
	DiagramMarkup string         `json:"diagram_markup"`
	Model         string         `json:"model"`
	TokensUsed    int            `json:"tokens_used"`
	Cached        bool           `json:"cached"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

// Manager coordinates sessions, the generation engine, the cache, and
// the diagram extractor through the conversation state machine.
type Manager struct {
	sessions session.SessionRepository
	messages session.MessageRepository
	engine   *generate.Engine
	cache    *cache.Store
	cfg      config.ConversationConfig
	bus      *events.Bus
	logger   *slog.Logger
}

// NewManager wires a manager. cache may be nil, which disables lookup
// and store without changing anything else.
func NewManager(sessions session.SessionRepository, messages session.MessageRepository, engine *generate.Engine, cacheStore *cache.Store, cfg config.ConversationConfig, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClarificationExchanges <= 0 {
		cfg.ClarificationExchanges = 3
	}
	return &Manager{
		sessions: sessions,
		messages: messages,
		engine:   engine,
		cache:    cacheStore,
		cfg:      cfg,
		bus:      bus,
		logger:   logger.With("component", "conversation"),
	}
}

// Transition moves a session to a new state. Illegal moves are rejected,
// logged, and leave the session untouched. Legal moves persist the new
// state, append the templated assistant message for the entered state,
// and run per-state side effects.
func (m *Manager) Transition(ctx context.Context, sess *session.Session, to State) error {
	from := State(sess.State)
	if !CanTransition(from, to) {
		m.logger.Warn("rejected state transition",
			"session_id", sess.ID, "from", from, "to", to)
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	sess.State = string(to)
	if sess.Metadata == nil {
		sess.Metadata = make(map[string]string)
	}
	if to == StateGeneration {
		sess.Metadata[metaGenerationStarted] = time.Now().UTC().Format(time.RFC3339)
	}
	if err := m.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("persist transition: %w", err)
	}

	if text, ok := prompts.TransitionMessages[string(to)]; ok {
		m.appendAssistant(ctx, sess.ID, text, map[string]string{"transition": string(to)})
	}
	if to == StateUpsell {
		m.presentOffers(ctx, sess.ID)
	}

	m.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceConversation,
		Kind:      events.KindStateChanged,
		Data:      map[string]any{"session_id": sess.ID, "from": string(from), "to": string(to)},
	})
	m.logger.Info("state transition", "session_id", sess.ID, "from", from, "to", to)
	return nil
}

// presentOffers appends the fixed upsell offers as independent tagged
// messages. Offers never block progression, so append failures only log.
func (m *Manager) presentOffers(ctx context.Context, sessionID string) {
	for _, offer := range prompts.UpsellOffers {
		m.appendAssistant(ctx, sessionID, offer.Text, map[string]string{"upsell_offer": offer.Tag})
	}
}

// Open seeds a fresh session's dialogue with the first clarifying
// question and returns it. Question generation degrades to the canned
// set, so Open only fails when the session cannot be loaded.
func (m *Manager) Open(ctx context.Context, sessionID string) (string, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	topic := prompts.NextTopic(nil)
	question, err := m.engine.GenerateQuestion(ctx, sess.ID, sess.Intake, nil)
	if err != nil {
		return "", err
	}
	if topic != "" {
		m.recordAskedTopic(ctx, sess, []string{topic})
	}
	m.appendAssistant(ctx, sess.ID, question, nil)
	return question, nil
}

// ProcessUserResponse runs one turn: persist the user message, produce
// the assistant reply for the current state, persist it, and apply the
// transition heuristic. Generation failure degrades the turn to the
// apology line and leaves state untouched.
func (m *Manager) ProcessUserResponse(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state := State(sess.State)

	if err := m.messages.AddMessage(ctx, &session.Message{
		SessionID: sessionID,
		Sender:    session.SenderUser,
		Content:   text,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	m.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceConversation,
		Kind:      events.KindTurnReceived,
		Data:      map[string]any{"session_id": sessionID, "state": string(state), "message_len": len(text)},
	})

	if state == StateComplete {
		reply := prompts.TransitionMessages[string(StateComplete)]
		m.appendAssistant(ctx, sessionID, reply, nil)
		return &TurnResult{
			AssistantText:   reply,
			State:           StateComplete,
			NextAction:      NextActionNone,
			ProgressPercent: Progress(StateComplete),
		}, nil
	}

	reply, degraded := m.assistantReply(ctx, sess, text)
	m.appendAssistant(ctx, sessionID, reply, nil)
	if degraded {
		m.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceConversation,
			Kind:      events.KindTurnDegraded,
			Data:      map[string]any{"session_id": sessionID, "state": string(state)},
		})
	}

	result := &TurnResult{
		AssistantText: reply,
		State:         state,
		NextAction:    NextActionContinue,
		Degraded:      degraded,
	}

	// A degraded turn never advances the conversation.
	if !degraded && state == StateClarification && m.clarificationDone(ctx, sessionID) {
		if err := m.Transition(ctx, sess, StateUpsell); err == nil {
			result.State = StateUpsell
			result.NextAction = NextActionUpsell
		}
	}

	result.ProgressPercent = Progress(result.State)
	return result, nil
}

// assistantReply produces the state-appropriate reply text. The second
// return reports degradation: the provider failed and the apology line
// stands in for a real reply.
func (m *Manager) assistantReply(ctx context.Context, sess *session.Session, userText string) (string, bool) {
	state := State(sess.State)

	if state == StateClarification {
		asked := splitTopics(sess.Metadata[metaAskedTopics])
		topic := prompts.NextTopic(asked)

		question, err := m.engine.GenerateQuestion(ctx, sess.ID, sess.Intake, asked)
		if err != nil {
			return prompts.ApologyLine, true
		}
		if topic != "" {
			m.recordAskedTopic(ctx, sess, append(asked, topic))
		}
		return question, false
	}

	instructions := prompts.StateInstructions[string(state)]
	transcript, err := m.messages.GetMessages(ctx, sess.ID)
	if err != nil {
		m.logger.Warn("load transcript", "session_id", sess.ID, "error", err)
	}

	res, err := m.engine.GenerateReply(ctx, sess.ID, instructions, turnPrompt(sess.Intake, transcript, userText))
	if err != nil {
		return prompts.ApologyLine, true
	}
	return res.Content, false
}

// clarificationDone applies the exchange-count heuristic: the phase is
// over once the transcript holds at least two messages per configured
// exchange.
func (m *Manager) clarificationDone(ctx context.Context, sessionID string) bool {
	msgs, err := m.messages.GetMessages(ctx, sessionID)
	if err != nil {
		m.logger.Warn("count messages", "session_id", sessionID, "error", err)
		return false
	}
	return len(msgs) >= 2*m.cfg.ClarificationExchanges
}

// ForceGeneration advances a session into the generation state, walking
// the legal chain from wherever it stands. Sessions already generating,
// presenting, or complete are left alone.
func (m *Manager) ForceGeneration(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for {
		switch State(sess.State) {
		case StateClarification:
			if err := m.Transition(ctx, sess, StateUpsell); err != nil {
				return nil, err
			}
		case StateUpsell, StatePresentation:
			if err := m.Transition(ctx, sess, StateGeneration); err != nil {
				return nil, err
			}
		default:
			return sess, nil
		}
	}
}

// HandleTimeout appends the standing continue prompt for an idle session
// and returns it. State never changes here.
func (m *Manager) HandleTimeout(ctx context.Context, sessionID string) (string, error) {
	if _, err := m.sessions.GetSession(ctx, sessionID); err != nil {
		return "", err
	}
	m.appendAssistant(ctx, sessionID, prompts.TimeoutPrompt, map[string]string{"timeout": "true"})
	return prompts.TimeoutPrompt, nil
}

// GenerateBlueprint assembles the blueprint for a session: cache lookup,
// generation on a miss, cache store (non-fatal), diagram extraction, and
// the transition into presentation.
func (m *Manager) GenerateBlueprint(ctx context.Context, sessionID string, opts cache.Options) (*Blueprint, error) {
	sess, err := m.ForceGeneration(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if State(sess.State) == StateComplete {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrInvalidTransition)
	}

	if payload, ok := m.cache.Lookup(ctx, sess.Intake, opts); ok {
		m.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceCache,
			Kind:      events.KindCacheHit,
			Data:      map[string]any{"fingerprint": cache.Fingerprint(sess.Intake)},
		})
		return m.presentBlueprint(ctx, sess, &Blueprint{
			Content:       payload.Content,
			Summary:       payload.Summary,
			Steps:         diagram.Extract(payload.Content).Steps,
			DiagramMarkup: payload.DiagramMarkup,
			Model:         payload.Model,
			TokensUsed:    payload.TokensUsed,
			Cached:        true,
			GeneratedAt:   payload.GeneratedAt,
		})
	}

	transcript, err := m.messages.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	res, err := m.engine.GenerateBlueprint(ctx, sessionID, sess.Intake, transcript)
	if err != nil {
		return nil, err
	}

	d := diagram.Extract(res.Content)

	// A cache write failure costs a future hit, nothing more.
	if err := m.cache.Put(ctx, sess.Intake, &cache.Payload{
		Content:       res.Content,
		Summary:       res.Summary,
		DiagramMarkup: d.Markup,
		StepsCount:    len(d.Steps),
		Model:         res.Model,
		TokensUsed:    res.TokensUsed,
		GeneratedAt:   res.GeneratedAt,
	}, opts); err != nil {
		m.logger.Warn("cache store failed", "session_id", sessionID, "error", err)
	} else {
		m.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceCache,
			Kind:      events.KindCacheStore,
			Data:      map[string]any{"fingerprint": cache.Fingerprint(sess.Intake)},
		})
	}

	return m.presentBlueprint(ctx, sess, &Blueprint{
		Content:       res.Content,
		Summary:       res.Summary,
		Steps:         d.Steps,
		DiagramMarkup: d.Markup,
		Model:         res.Model,
		TokensUsed:    res.TokensUsed,
		GeneratedAt:   res.GeneratedAt,
	})
}

// presentBlueprint stamps identity onto the blueprint, links it to the
// session, and moves the conversation into presentation.
func (m *Manager) presentBlueprint(ctx context.Context, sess *session.Session, bp *Blueprint) (*Blueprint, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate blueprint ID: %w", err)
	}
	bp.ID = id.String()
	bp.SessionID = sess.ID

	sess.BlueprintID = bp.ID
	if err := m.Transition(ctx, sess, StatePresentation); err != nil {
		return nil, err
	}
	return bp, nil
}

// Complete moves a session from presentation to complete.
func (m *Manager) Complete(ctx context.Context, sessionID string) error {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.Transition(ctx, sess, StateComplete)
}

// appendAssistant persists an assistant message, logging rather than
// failing the turn when the write does not land.
func (m *Manager) appendAssistant(ctx context.Context, sessionID, text string, metadata map[string]string) {
	err := m.messages.AddMessage(ctx, &session.Message{
		SessionID: sessionID,
		Sender:    session.SenderAssistant,
		Content:   text,
		Metadata:  metadata,
	})
	if err != nil {
		m.logger.Warn("persist assistant message", "session_id", sessionID, "error", err)
	}
}

// recordAskedTopic persists the updated asked-topic list on the session.
func (m *Manager) recordAskedTopic(ctx context.Context, sess *session.Session, asked []string) {
	if sess.Metadata == nil {
		sess.Metadata = make(map[string]string)
	}
	sess.Metadata[metaAskedTopics] = strings.Join(asked, ",")
	if err := m.sessions.UpdateSession(ctx, sess); err != nil {
		m.logger.Warn("persist asked topics", "session_id", sess.ID, "error", err)
	}
}

func splitTopics(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// turnPrompt assembles the context prompt for a non-clarification turn.
func turnPrompt(intake session.Intake, transcript []session.Message, userText string) string {
	var sb strings.Builder

	sb.WriteString("Client intake:\n")
	fmt.Fprintf(&sb, "- Goal: %s\n", intake.Goal)
	fmt.Fprintf(&sb, "- Current workflow: %s\n", intake.Workflow)
	fmt.Fprintf(&sb, "- Tools in use: %s\n", intake.Tools)
	fmt.Fprintf(&sb, "- Pain points: %s\n\n", intake.PainPoints)

	if len(transcript) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, msg := range transcript {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Sender, msg.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Client's latest message: %s\n", userText)
	return sb.String()
}
