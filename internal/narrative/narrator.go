// Package narrative voices client feedback through a language model. The
// negotiation engine treats it as optional: every answer is checked and any
// failure falls back to template text.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joelkehle/negotiation-lab/internal/negotiation"
	"github.com/joelkehle/negotiation-lab/internal/platform/logger"
)

// Narrator implements negotiation.Narrator over an LLMCaller.
type Narrator struct {
	caller LLMCaller
	log    *logger.Logger
}

// New returns a Narrator. A nil caller yields a disabled narrator.
func New(caller LLMCaller, log *logger.Logger) *Narrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Narrator{caller: caller, log: log}
}

// NewFromEnv wires the Anthropic caller unless NEGOTIATION_NO_LLM is set or
// no API key is configured.
func NewFromEnv(log *logger.Logger) *Narrator {
	if log == nil {
		log = logger.NewNop()
	}
	if killSwitch() {
		log.Info("narrator disabled", "reason", "NEGOTIATION_NO_LLM")
		return New(nil, log)
	}
	caller, err := NewAnthropicCallerFromEnv()
	if err != nil {
		log.Info("narrator disabled", "reason", err.Error())
		return New(nil, log)
	}
	return New(caller, log)
}

func killSwitch() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("NEGOTIATION_NO_LLM")))
	return v != "" && v != "0" && v != "false"
}

func (n *Narrator) Enabled() bool {
	return n != nil && n.caller != nil && !killSwitch()
}

type feedbackReply struct {
	Feedback string `json:"feedback"`
	Mood     string `json:"mood"`
}

type adviceReply struct {
	Advice string `json:"advice"`
}

func (n *Narrator) GenerateFeedback(ctx context.Context, brief negotiation.OfferBrief) (negotiation.Narrative, error) {
	var reply feedbackReply
	if err := n.ask(ctx, "feedback", feedbackPrompt(brief), &reply); err != nil {
		return negotiation.Narrative{}, err
	}
	if strings.TrimSpace(reply.Feedback) == "" {
		return negotiation.Narrative{}, fmt.Errorf("feedback reply has no text")
	}
	mood := negotiation.Mood(reply.Mood)
	return negotiation.Narrative{
		Text:  reply.Feedback,
		Mood:  mood,
		Score: negotiation.MoodToScore(mood),
	}, nil
}

func (n *Narrator) AnalyzeNegotiationState(ctx context.Context, brief negotiation.NegotiationBrief) (negotiation.Advice, error) {
	var reply adviceReply
	if err := n.ask(ctx, "advice", advicePrompt(brief), &reply); err != nil {
		return negotiation.Advice{}, err
	}
	if strings.TrimSpace(reply.Advice) == "" {
		return negotiation.Advice{}, fmt.Errorf("advice reply has no text")
	}
	return negotiation.Advice{Advice: reply.Advice}, nil
}

// ask makes one attempt. Retries would outlive the engine's narrator
// timeout, so transport failures are classified and returned.
func (n *Narrator) ask(ctx context.Context, stage, prompt string, out any) error {
	if !n.Enabled() {
		return fmt.Errorf("%s: narrator disabled", stage)
	}
	raw, err := n.caller.GenerateJSON(ctx, prompt+"\n\nRespond with only valid JSON matching the schema.")
	if err != nil {
		class := classifyTransportError(err)
		n.log.Warn("narrator call failed", "stage", stage, "class", class.String(), "error", err)
		return fmt.Errorf("%s transport failure (%s): %w", stage, class, err)
	}
	clean := stripCodeFences(raw)
	if clean == "" {
		return fmt.Errorf("%s failed: empty response", stage)
	}
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("%s failed json parse: %w", stage, err)
	}
	return nil
}

func feedbackPrompt(b negotiation.OfferBrief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your legal team (%s side) just made an offer in round %d of %d.\n", b.Role, b.RoundNumber, b.TotalRounds)
	fmt.Fprintf(&sb, "Offer amount: $%s\n", b.Amount.StringFixed(0))
	fmt.Fprintf(&sb, "Their justification: %s\n", b.Justification)
	if b.Terms != "" {
		fmt.Fprintf(&sb, "Non-monetary terms: %s\n", b.Terms)
	}
	fmt.Fprintf(&sb, "How you feel about it: positioning %s, mood %s, theme %q, pressure %s.\n",
		b.Range.Positioning, b.Range.Mood, b.Range.FeedbackTheme, b.Range.PressureLevel)
	sb.WriteString("Write two to four sentences reacting as the client. Do not mention any dollar limits or targets.\n")
	sb.WriteString(`Schema: {"feedback": string, "mood": one of "very_unhappy","unhappy","neutral","satisfied","very_satisfied"}`)
	return sb.String()
}

func advicePrompt(b negotiation.NegotiationBrief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Round %d of %d has both offers in. You advise the %s team.\n", b.RoundNumber, b.TotalRounds, b.Audience)
	fmt.Fprintf(&sb, "Plaintiff demand: $%s. Defendant offer: $%s.\n", b.PlaintiffAmount.StringFixed(0), b.DefendantAmount.StringFixed(0))
	fmt.Fprintf(&sb, "The gap is %s (%.0f%% of the average offer); settlement likelihood: %s.\n", b.Gap.Category, b.Gap.RelativeGap*100, b.Gap.Likelihood)
	sb.WriteString("Give two or three sentences of strategy advice for the next round without naming client limits.\n")
	sb.WriteString(`Schema: {"advice": string}`)
	return sb.String()
}

var _ negotiation.Narrator = (*Narrator)(nil)
