package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/greenchain/greenchain/storage"
)

// Default agent configuration values
const (
	DefaultModel         = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens     = 1024
	DefaultMaxToolRounds = 3
)

const systemPrompt = `You are the clearance desk assistant for a surplus
food marketplace. You help registered buyers order near-expiry inventory
at a discount.

Collect the quantity the buyer needs and how many days their delivery
takes, then call the evaluate_order tool. The tool's verdict is final: if
it rejects the order, tell the buyer why and do not promise the goods. If
it approves, confirm the quantity, the discount, and the payment terms it
returned. Keep replies short and businesslike.`

// Message roles stored per session turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSessionNotFound is returned when a reply targets an unknown session.
var ErrSessionNotFound = errors.New("voice session not found")

// AgentConfig holds configuration for the voice agent.
type AgentConfig struct {
	// Model is the Anthropic model to use. Default: DefaultModel
	Model string

	// MaxTokens caps the response length. Default: 1024
	MaxTokens int

	// MaxToolRounds bounds how many evaluate_order rounds a single reply
	// may trigger. Default: 3
	MaxToolRounds int
}

// DefaultAgentConfig returns the default agent configuration.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Model:         DefaultModel,
		MaxTokens:     DefaultMaxTokens,
		MaxToolRounds: DefaultMaxToolRounds,
	}
}

// Reply is one assistant turn: the raw text, the sanitized HTML rendering,
// and the order decision when this turn produced one.
type Reply struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	Decision  *Decision `json:"decision,omitempty"`
}

// Agent runs voice sessions. With an Anthropic client the conversation is
// model-driven; without one it falls back to the deterministic evaluator,
// so the endpoint keeps working offline.
type Agent struct {
	client    *anthropic.Client
	store     storage.Store
	evaluator *Evaluator
	config    *AgentConfig
}

// NewAgent creates a voice agent. client may be nil.
func NewAgent(client *anthropic.Client, store storage.Store, config *AgentConfig) *Agent {
	cfg := DefaultAgentConfig()
	if config != nil {
		if config.Model != "" {
			cfg.Model = config.Model
		}
		if config.MaxTokens > 0 {
			cfg.MaxTokens = config.MaxTokens
		}
		if config.MaxToolRounds > 0 {
			cfg.MaxToolRounds = config.MaxToolRounds
		}
	}

	return &Agent{
		client:    client,
		store:     store,
		evaluator: NewEvaluator(store),
		config:    cfg,
	}
}

// StartSession opens a session for a buyer, optionally anchored to a lot,
// and returns the session ID with the opening question.
func (a *Agent) StartSession(ctx context.Context, buyerID string, lotID *string) (string, *Reply, error) {
	if buyerID == "" {
		return "", nil, ErrBuyerRequired
	}

	if _, err := a.store.GetBuyer(ctx, buyerID); err != nil {
		return "", nil, fmt.Errorf("failed to resolve buyer: %w", err)
	}

	sessionID, err := a.store.CreateVoiceSession(ctx, buyerID, lotID, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	opening := OpeningQuestion(buyerID)
	if err := a.saveTurn(ctx, sessionID, RoleAssistant, opening); err != nil {
		return "", nil, err
	}

	reply, err := a.buildReply(sessionID, opening, nil)
	if err != nil {
		return "", nil, err
	}
	return sessionID, reply, nil
}

// HandleReply records the buyer's message and produces the next assistant
// turn.
func (a *Agent) HandleReply(ctx context.Context, sessionID, text string) (*Reply, error) {
	session, err := a.store.GetVoiceSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := a.saveTurn(ctx, sessionID, RoleUser, text); err != nil {
		return nil, err
	}

	var (
		responseText string
		decision     *Decision
	)
	if a.client != nil {
		responseText, decision, err = a.modelTurn(ctx, session)
	} else {
		responseText, decision, err = a.offlineTurn(ctx, session, text)
	}
	if err != nil {
		return nil, err
	}

	if err := a.saveTurn(ctx, sessionID, RoleAssistant, responseText); err != nil {
		return nil, err
	}

	return a.buildReply(sessionID, responseText, decision)
}

// Evaluate runs the deterministic evaluator directly, without a model
// round-trip.
func (a *Agent) Evaluate(ctx context.Context, req *OrderRequest) (*Decision, error) {
	if req.BuyerID != "" {
		if _, err := a.store.GetBuyer(ctx, req.BuyerID); err != nil {
			return nil, fmt.Errorf("failed to resolve buyer: %w", err)
		}
	}
	return a.evaluator.Evaluate(ctx, req)
}

// modelTurn runs one conversation turn through the Messages API, resolving
// evaluate_order tool calls as they come back.
func (a *Agent) modelTurn(ctx context.Context, session *storage.VoiceSession) (string, *Decision, error) {
	history, err := a.store.GetVoiceMessages(ctx, session.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	var (
		responseText strings.Builder
		decision     *Decision
	)

	for round := 0; round < a.config.MaxToolRounds; round++ {
		msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.config.Model),
			MaxTokens: int64(a.config.MaxTokens),
			Messages:  messages,
			System: []anthropic.TextBlockParam{
				{Text: a.systemPromptFor(session)},
			},
			Tools: []anthropic.ToolUnionParam{evaluateOrderTool()},
		})
		if err != nil {
			return "", nil, fmt.Errorf("failed to call model: %w", err)
		}

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				if responseText.Len() > 0 {
					responseText.WriteString("\n")
				}
				responseText.WriteString(variant.Text)
			case anthropic.ToolUseBlock:
				result, dec := a.runEvaluateTool(ctx, session, variant)
				if dec != nil {
					decision = dec
				}
				toolResults = append(toolResults, result)
			}
		}

		if len(toolResults) == 0 {
			break
		}

		messages = append(messages, msg.ToParam())
		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	if responseText.Len() == 0 {
		return "", nil, fmt.Errorf("model returned no text")
	}
	return responseText.String(), decision, nil
}

// runEvaluateTool executes one evaluate_order call and packages the result
// for the model.
func (a *Agent) runEvaluateTool(ctx context.Context, session *storage.VoiceSession, toolUse anthropic.ToolUseBlock) (anthropic.ContentBlockParamUnion, *Decision) {
	inputBytes, err := json.Marshal(toolUse.Input)
	if err != nil {
		return anthropic.NewToolResultBlock(toolUse.ID, fmt.Sprintf("invalid input: %v", err), true), nil
	}

	var req OrderRequest
	if err := json.Unmarshal(inputBytes, &req); err != nil {
		return anthropic.NewToolResultBlock(toolUse.ID, fmt.Sprintf("invalid input: %v", err), true), nil
	}

	// The session, not the model, decides whose order this is.
	req.BuyerID = session.BuyerID
	if session.LotID != nil && req.LotID == "" {
		req.LotID = *session.LotID
	}

	decision, err := a.evaluator.Evaluate(ctx, &req)
	if err != nil {
		return anthropic.NewToolResultBlock(toolUse.ID, err.Error(), true), nil
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return anthropic.NewToolResultBlock(toolUse.ID, err.Error(), true), nil
	}
	return anthropic.NewToolResultBlock(toolUse.ID, string(payload), false), decision
}

// offlineTurn handles a reply without a model: the buyer's message is read
// as an order request and evaluated directly.
func (a *Agent) offlineTurn(ctx context.Context, session *storage.VoiceSession, text string) (string, *Decision, error) {
	var req OrderRequest
	if err := json.Unmarshal([]byte(text), &req); err != nil {
		return "Please send your order as JSON with quantity_needed and delivery_time_days.", nil, nil
	}

	req.BuyerID = session.BuyerID
	if session.LotID != nil && req.LotID == "" {
		req.LotID = *session.LotID
	}

	decision, err := a.evaluator.Evaluate(ctx, &req)
	if err != nil {
		return "", nil, err
	}

	if decision.Approved {
		text := fmt.Sprintf(
			"Order approved. Quantity %s at %d%% off, payment terms %s.",
			req.QuantityNeeded, decision.DiscountPct, decision.PaymentTerms)
		return text, decision, nil
	}
	return fmt.Sprintf("Order declined: %s.", decision.Reason), decision, nil
}

func (a *Agent) systemPromptFor(session *storage.VoiceSession) string {
	prompt := systemPrompt + "\n\nThe buyer's ID is " + session.BuyerID + "."
	if session.LotID != nil {
		prompt += " This session is about lot " + *session.LotID + "."
	}
	return prompt
}

func (a *Agent) saveTurn(ctx context.Context, sessionID, role, content string) error {
	err := a.store.SaveVoiceMessage(ctx, &storage.VoiceMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s turn: %w", role, err)
	}
	return nil
}

func (a *Agent) buildReply(sessionID, text string, decision *Decision) (*Reply, error) {
	html, err := RenderHTML(text)
	if err != nil {
		return nil, err
	}
	return &Reply{
		SessionID: sessionID,
		Text:      text,
		HTML:      html,
		Decision:  decision,
	}, nil
}

// evaluateOrderTool is the tool definition handed to the model.
func evaluateOrderTool() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name: "evaluate_order",
			Description: anthropic.String(
				"Decide whether a buyer's order can be fulfilled. Rejects " +
					"orders whose delivery time exceeds the shelf-life window. " +
					"The verdict is final."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type: constant.Object("object"),
				Properties: map[string]any{
					"quantity_needed": map[string]any{
						"type":        "number",
						"description": "Units the buyer wants",
					},
					"delivery_time_days": map[string]any{
						"type":        "integer",
						"description": "Days the buyer's delivery takes",
					},
					"lot_id": map[string]any{
						"type":        "string",
						"description": "Lot the order is for, if known",
					},
				},
				Required: []string{"quantity_needed", "delivery_time_days"},
			},
		},
	}
}
