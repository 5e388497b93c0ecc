package router

import (
	"context"
	"fmt"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/llm"
)

// fieldPromptBytes bounds how much extracted text is sent to the LLM field
// extractor, mirroring pkg/qualify's stage2PromptBytes truncation policy.
const fieldPromptBytes = 8192

const fieldExtractionSystemPrompt = `You extract structured fields from a business document's text.
Return a JSON object with a single "fields" key mapping field names to their
string values. Only include a field if you found it verbatim or can state it
with high confidence. Recognized field names for an invoice/receipt/statement:
total_amount, invoice_number, issue_date, due_date, vendor_name.`

type fieldExtractionResponse struct {
	Fields map[string]string `json:"fields"`
}

// ExtractFieldsLLM is C6's fallback field extractor (spec.md §4.6 step 4:
// "on miss or verification failure, call LLM field extractor"), gated by
// the same budget/circuit-breaker rules as qualification's Stage 2.
func (r *Router) ExtractFieldsLLM(ctx context.Context, userID, documentType, text string) (map[string]string, error) {
	if err := r.checkLLMBudget(userID); err != nil {
		return nil, err
	}
	if r.provider == nil {
		return nil, mgerrors.ClassifyError(fmt.Errorf("llm: no field-extraction provider configured"), "router.extract_fields")
	}

	truncated := text
	if len(truncated) > fieldPromptBytes {
		truncated = truncated[:fieldPromptBytes]
	}

	req := llm.CompletionRequest{
		SystemPrompt: fieldExtractionSystemPrompt,
		Prompt:       fmt.Sprintf("document_type: %s\n\ntext:\n%s", documentType, truncated),
		JSONMode:     true,
		MaxTokens:    1024,
	}

	var resp fieldExtractionResponse
	if err := r.provider.CompleteStructured(ctx, req, &resp); err != nil {
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}
		return nil, mgerrors.ClassifyError(fmt.Errorf("llm field extraction: %w", err), "router.extract_fields")
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}

	return resp.Fields, nil
}
