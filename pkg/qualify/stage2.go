package qualify

import (
	"context"
	"fmt"

	"github.com/otherjamesbrown/mailgraph/pkg/llm"
)

// stage2PromptBytes is spec.md §4.4's Stage 2 body window: "first N bytes
// of body (N=4096)".
const stage2PromptBytes = 4096

// stage2Response is the structured shape spec.md §4.4 requires the LLM to
// return.
type stage2Response struct {
	Qualified  bool    `json:"qualified"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const stage2SystemPrompt = `You are a classifier deciding whether an email is a business document worth extracting (an invoice, receipt, bank statement, purchase order, or similar). Respond with JSON only: {"qualified": bool, "confidence": number between 0 and 1, "reason": a short string}.`

// runStage2 implements spec.md §4.4 Stage 2: a single structured prompt
// carrying the subject and the first stage2PromptBytes of the body.
func runStage2(ctx context.Context, provider llm.Provider, subject, body string) (Stage1Outcome, error) {
	if len(body) > stage2PromptBytes {
		body = body[:stage2PromptBytes]
	}

	prompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, body)
	var resp stage2Response
	err := provider.CompleteStructured(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: stage2SystemPrompt,
		JSONMode:     true,
	}, &resp)
	if err != nil {
		return Stage1Outcome{}, err
	}

	return Stage1Outcome{
		Conclusive: true,
		Qualified:  resp.Qualified,
		Stage:      "llm",
		Confidence: resp.Confidence,
		Reason:     resp.Reason,
	}, nil
}
