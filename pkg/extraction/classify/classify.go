// Package classify implements the Extraction Pipeline's (C6) classifying
// transition: a cheap keyword pre-filter over extracted document text,
// falling back to LLM classification when no keyword set wins clearly.
// Grounded on pkg/qualify's two-stage (deterministic gate, then LLM
// adjudication) shape, generalized from a binary qualified/not decision to
// picking one of graph.DocumentType's values.
package classify

import (
	"context"
	"fmt"
	"strings"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/llm"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// classifyPromptBytes bounds how much text reaches the LLM classifier,
// matching pkg/qualify's stage2PromptBytes truncation policy.
const classifyPromptBytes = 4096

// keywordSets is the Stage 1 gate: a document's text is scored against each
// type's token set, and the type with a strictly higher count than every
// other type (and at least one hit) wins without calling the LLM.
var keywordSets = map[graph.DocumentType][]string{
	graph.DocInvoice:       {"invoice", "invoice number", "amount due", "bill to"},
	graph.DocReceipt:       {"receipt", "thank you for your purchase", "paid", "order confirmation"},
	graph.DocBankStatement: {"statement", "account summary", "opening balance", "closing balance"},
	graph.DocPurchaseOrder: {"purchase order", "po number"},
	graph.DocSalesOrder:    {"sales order", "order number"},
	graph.DocDeliveryNote:  {"delivery note", "packing slip", "shipped"},
	graph.DocQuote:         {"quote", "quotation", "estimate"},
	graph.DocContract:      {"agreement", "contract", "terms and conditions", "hereby agree"},
	graph.DocTaxDocument:   {"tax", "w-2", "1099", "vat"},
}

// Classifier picks a graph.DocumentType for extracted document text.
type Classifier struct {
	provider llm.Provider
	budget   *llm.Budget
	breaker  *llm.CircuitBreaker
	logger   logging.Logger
}

// New builds a Classifier. provider may be nil if the caller never expects
// an ambiguous Stage 1 result — Classify then returns DocOther whenever
// Stage 1 is inconclusive.
func New(provider llm.Provider, budget *llm.Budget, breaker *llm.CircuitBreaker, logger logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Classifier{provider: provider, budget: budget, breaker: breaker, logger: logger.With(logging.F("component", "extraction.classify"))}
}

// Classify returns the document type for text, and whether that
// determination came from the deterministic Stage 1 gate or an LLM call.
func (c *Classifier) Classify(ctx context.Context, userID, text string) (docType graph.DocumentType, confidence float64, err error) {
	if dt, conf, ok := stage1(text); ok {
		return dt, conf, nil
	}
	return c.stage2(ctx, userID, text)
}

// stage1 scores text against every type's keyword set and returns the
// unique highest scorer, if any single type strictly leads.
func stage1(text string) (graph.DocumentType, float64, bool) {
	lower := strings.ToLower(text)
	best := graph.DocOther
	bestScore := 0
	tie := false

	for docType, tokens := range keywordSets {
		score := 0
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best = docType
			bestScore = score
			tie = false
		case score == bestScore && score > 0:
			tie = true
		}
	}

	if bestScore == 0 || tie {
		return graph.DocOther, 0, false
	}
	return best, 0.9, true
}

type stage2Response struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

const stage2SystemPrompt = `You classify a business document's extracted text into exactly one type.
Valid types: invoice, receipt, bank_statement, purchase_order, sales_order,
delivery_note, quote, contract, tax_document, other.
Respond with JSON: {"document_type": "...", "confidence": 0.0-1.0, "reason": "..."}.
Use "other" if the document is not a business document in this list.`

func (c *Classifier) stage2(ctx context.Context, userID, text string) (graph.DocumentType, float64, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return graph.DocOther, 0, mgerrors.ClassifyError(fmt.Errorf("rate limit: llm circuit breaker open"), "classify.stage2")
	}
	if c.budget != nil && !c.budget.AllowCall(userID) {
		return graph.DocOther, 0, mgerrors.ClassifyError(fmt.Errorf("rate limit: llm per-minute cap reached"), "classify.stage2")
	}
	if c.provider == nil {
		return graph.DocOther, 0, mgerrors.ClassifyError(fmt.Errorf("llm: no classification provider configured"), "classify.stage2")
	}

	truncated := text
	if len(truncated) > classifyPromptBytes {
		truncated = truncated[:classifyPromptBytes]
	}

	var resp stage2Response
	err := c.provider.CompleteStructured(ctx, llm.CompletionRequest{
		SystemPrompt: stage2SystemPrompt,
		Prompt:       truncated,
		JSONMode:     true,
	}, &resp)
	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		return graph.DocOther, 0, mgerrors.ClassifyError(fmt.Errorf("llm classification: %w", err), "classify.stage2")
	}
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}

	dt := graph.DocumentType(resp.DocumentType)
	if !validDocType(dt) {
		dt = graph.DocOther
	}
	return dt, resp.Confidence, nil
}

func validDocType(dt graph.DocumentType) bool {
	switch dt {
	case graph.DocInvoice, graph.DocReceipt, graph.DocBankStatement, graph.DocPurchaseOrder,
		graph.DocSalesOrder, graph.DocDeliveryNote, graph.DocQuote, graph.DocContract,
		graph.DocTaxDocument, graph.DocOther:
		return true
	default:
		return false
	}
}
