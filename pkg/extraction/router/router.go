// Package router implements the Extractor Router (C7): per-Document,
// per-call-site decisions about which extractor to use, optimizing cost
// under a declared routing policy (spec.md §4.7). Decision-rule shape is
// grounded on other_examples' invoicelib.Parser/Extractor split (ParsePDF
// returning (text, confidence, error); ExtractFromText/ExtractFromImage as
// distinct LLM tiers) and on pkg/ingest/attachments/heuristic.go's
// rule-table classifier pattern for the scanned/image skip gates. The PDF
// text-layer reader itself (github.com/ledongthuc/pdf) is an out-of-pack
// dependency — no example repo carries a PDF library, so this is named
// rather than grounded, per DESIGN.md.
package router

import (
	"context"
	"errors"
	"fmt"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/llm"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// CostPolicy governs how aggressively the router spends on scanned
// documents and images (spec.md §4.7).
type CostPolicy string

const (
	// CostConservative is the default: scanned PDFs and images are skipped
	// rather than sent to vision OCR.
	CostConservative CostPolicy = "cost_conservative"
	// AccuracyFirst routes scanned PDFs/images to vision OCR instead of
	// skipping them.
	AccuracyFirst CostPolicy = "accuracy_first"
)

// Skip reasons, matching spec.md §4.7's literal strings.
const (
	SkipScannedPDFCostPolicy = "scanned_pdf_skipped_by_cost_policy"
	SkipImageCostPolicy      = "image_skipped_by_cost_policy"
)

// acceptMinTextLength and acceptMinPrintableRatio are the embedded-text
// extractor's accept criteria (spec.md §4.7 rule 1).
const (
	acceptMinTextLength     = 100
	acceptMinPrintableRatio = 0.8
)

// visionConfidence is the confidence assigned to text produced by the
// vision-OCR tier. The spec does not state one; 0.75 reflects that
// vision transcription is materially less reliable than a PDF's native
// text layer (confidence 1.0) but still usable without verification,
// an Open-Question decision recorded in DESIGN.md.
const visionConfidence = 0.75

// TextOutcome is what ExtractText returns for one attachment's bytes.
type TextOutcome struct {
	Text          string
	Method        string // graph.ExtractionMethod value, kept as a string to avoid an import cycle
	Confidence    float64
	PageCount     int
	CharCount     int
	SkippedReason string // non-empty means the Document should exit `skipped` with this reason
}

// Router makes C7's routing decisions for one call site.
type Router struct {
	policy   CostPolicy
	provider llm.Provider
	budget   *llm.Budget
	breaker  *llm.CircuitBreaker
	logger   logging.Logger
}

// New builds a Router. provider/budget/breaker may be nil only if the
// caller never needs the LLM field-extraction tier or accuracy_first
// vision OCR — ExtractFieldsLLM and vision routing return
// ErrLLMPermanent-classified errors in that case.
func New(policy CostPolicy, provider llm.Provider, budget *llm.Budget, breaker *llm.CircuitBreaker, logger logging.Logger) *Router {
	if policy == "" {
		policy = CostConservative
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Router{policy: policy, provider: provider, budget: budget, breaker: breaker, logger: logger.With(logging.F("component", "extraction.router"))}
}

// ExtractText routes text extraction for one attachment's bytes per
// spec.md §4.7's decision rules 1-4.
func (r *Router) ExtractText(ctx context.Context, userID, mimeType string, data []byte) (TextOutcome, error) {
	switch {
	case isPDF(mimeType, data):
		return r.extractPDF(ctx, userID, data)
	case isImage(mimeType):
		return r.extractImage(ctx, userID, mimeType, data)
	default:
		return TextOutcome{}, mgerrors.ClassifyError(fmt.Errorf("corrupted document: unsupported mime type %q for text extraction", mimeType), "router.extract_text")
	}
}

func (r *Router) extractPDF(ctx context.Context, userID string, data []byte) (TextOutcome, error) {
	text, pageCount, hasImages, err := readPDFText(data)
	if err != nil {
		if isEncryptedPDFErr(err) {
			return TextOutcome{}, mgerrors.ClassifyError(fmt.Errorf("encrypted pdf: password protected: %w", err), "router.pdf_text")
		}
		return TextOutcome{}, mgerrors.ClassifyError(fmt.Errorf("corrupted document: malformed pdf: %w", err), "router.pdf_text")
	}

	charCount := len(text)
	if !hasImages && charCount >= acceptMinTextLength && printableRatio(text) >= acceptMinPrintableRatio {
		return TextOutcome{Text: text, Method: "pdf_text", Confidence: 1.0, PageCount: pageCount, CharCount: charCount}, nil
	}

	// Scanned (image-backed) PDF, or a text layer too thin/garbled to trust.
	if r.policy == CostConservative {
		return TextOutcome{SkippedReason: SkipScannedPDFCostPolicy, PageCount: pageCount}, nil
	}
	return r.visionFallback(ctx, userID, data, "application/pdf", pageCount)
}

func (r *Router) extractImage(ctx context.Context, userID, mimeType string, data []byte) (TextOutcome, error) {
	if r.policy == CostConservative {
		return TextOutcome{SkippedReason: SkipImageCostPolicy}, nil
	}
	return r.visionFallback(ctx, userID, data, mimeType, 1)
}

func (r *Router) visionFallback(ctx context.Context, userID string, data []byte, mimeType string, pageCount int) (TextOutcome, error) {
	if err := r.checkLLMBudget(userID); err != nil {
		return TextOutcome{}, err
	}
	if r.provider == nil {
		return TextOutcome{}, mgerrors.ClassifyError(errors.New("llm: no vision provider configured"), "router.vision")
	}

	req := llm.CompletionRequest{
		SystemPrompt:  "Transcribe all text visible in this document image verbatim, preserving reading order. Output only the transcribed text.",
		ImageBase64:   encodeBase64(data),
		ImageMimeType: mimeType,
		MaxTokens:     4096,
	}
	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}
		return TextOutcome{}, mgerrors.ClassifyError(fmt.Errorf("llm vision completion: %w", err), "router.vision")
	}
	if r.breaker != nil {
		r.breaker.RecordSuccess()
	}

	return TextOutcome{Text: resp.Content, Method: "vision_ocr", Confidence: visionConfidence, PageCount: pageCount, CharCount: len(resp.Content)}, nil
}

// checkLLMBudget enforces spec.md §4.7's cost caps and circuit breaker
// before any LLM call; budget/breaker are expected non-nil whenever an LLM
// tier is reachable (callers wire both together via New).
func (r *Router) checkLLMBudget(userID string) error {
	if r.breaker != nil && !r.breaker.Allow() {
		return mgerrors.ClassifyError(errors.New("rate limit: llm circuit breaker open"), "router.budget")
	}
	if r.budget == nil {
		return nil
	}
	if !r.budget.UnderDailyCap(userID) {
		return mgerrors.ClassifyError(errors.New("cost cap exceeded: daily llm dollar cap reached"), "router.budget")
	}
	if !r.budget.AllowCall(userID) {
		return mgerrors.ClassifyError(errors.New("rate limit: llm per-minute cap reached"), "router.budget")
	}
	return nil
}
