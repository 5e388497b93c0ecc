package pipeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/router"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/templatecache"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// verifyConfidenceThreshold is the minimum Apply() confidence a cached
// template's field extraction must clear before its fields are trusted
// outright (spec.md §4.8: "verify fields present with adequate confidence").
// Below this, the cache hit is treated as a miss and the document falls
// through to the LLM tier.
const verifyConfidenceThreshold = 0.7

// Pipeline implements the Extraction Pipeline (C6): given one queued
// attachment job, drives a Document through every transition in spec.md
// §4.6 to completed, skipped, or failed.
type Pipeline struct {
	graph      GraphStore
	templates  TemplateStore
	blobs      BlobStore
	router     TextRouter
	classifier DocClassifier
	fetcher    AttachmentFetcher
	leasePool  *pgxpool.Pool
	logger     logging.Logger
}

// New builds a Pipeline. leasePool is used only to take the per-Document
// advisory lock (lease.go) and may be the same pool backing graph/templates.
func New(g GraphStore, t TemplateStore, b BlobStore, r TextRouter, c DocClassifier, f AttachmentFetcher, leasePool *pgxpool.Pool, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pipeline{
		graph:      g,
		templates:  t,
		blobs:      b,
		router:     r,
		classifier: c,
		fetcher:    f,
		leasePool:  leasePool,
		logger:     logger.With(logging.F("component", "extraction.pipeline")),
	}
}

// Process drives one job from queued through to a terminal state. A
// non-nil, retryable error (per mgerrors.IsErrorRetryable) tells the
// caller's jobqueue worker to Nack-and-reschedule; a non-nil, non-retryable
// error means the Document was already marked failed and should not be
// retried. A nil error means the Document reached completed or skipped.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	log := p.logger.With(logging.F("user_id", job.UserID), logging.F("attachment_id", job.AttachmentID))

	// queued -> fetching: lease on (user_id, attachment_id) until the
	// content_hash is known, since the hash requires the bytes in hand.
	fetchCtx, fetchSpan := startTransitionSpan(ctx, "fetching", job.AttachmentID)

	preLease, err := p.acquire(fetchCtx, job.UserID+"/"+job.AttachmentID)
	if err != nil {
		endSpan(fetchSpan, err)
		return mgerrors.ClassifyError(err, "pipeline.fetching")
	}

	_ = p.graph.SetDownloadState(fetchCtx, job.AttachmentID, graph.DownloadDownloading)

	data, err := p.fetcher.FetchAttachment(fetchCtx, job.UserID, job.ProviderName, job.ProviderMessageID, job.ProviderAttachmentID)
	if err != nil {
		preLease.release(fetchCtx)
		_ = p.graph.SetDownloadState(fetchCtx, job.AttachmentID, graph.DownloadFailed)
		endSpan(fetchSpan, err)
		return mgerrors.ClassifyError(err, "pipeline.fetching")
	}
	_ = p.graph.SetDownloadState(fetchCtx, job.AttachmentID, graph.DownloadDownloaded)

	hash := contentHash(data)

	// Re-key the lease onto the content_hash itself: two different
	// attachments with identical bytes (a forwarded duplicate) must now
	// serialize against each other, not just against themselves.
	lease, err := p.acquire(fetchCtx, hash)
	preLease.release(fetchCtx)
	if err != nil {
		endSpan(fetchSpan, err)
		return mgerrors.ClassifyError(err, "pipeline.fetching")
	}
	defer lease.release(ctx)

	attachmentID := job.AttachmentID
	doc := &graph.Document{
		UserID:             job.UserID,
		SourceAttachmentID: &attachmentID,
		ContentHash:        hash,
		StorageKey:         hash,
		ExtractionStatus:   graph.ExtractionQueued,
		ExtractionMethod:   graph.MethodNone,
	}
	documentID, reused, err := p.graph.CreateDocumentWithLink(fetchCtx, doc, job.MessageID)
	if err != nil {
		endSpan(fetchSpan, err)
		return mgerrors.ClassifyError(err, "pipeline.fetching")
	}
	fetchSpan.SetAttributes(attribute.String("mailgraph.document_id", documentID))

	if reused {
		status, err := p.graph.GetExtractionStatus(fetchCtx, documentID)
		if err != nil {
			endSpan(fetchSpan, err)
			return mgerrors.ClassifyError(err, "pipeline.fetching")
		}
		if status == graph.ExtractionExtracted || status == graph.ExtractionSkipped {
			log.Debug("duplicate content_hash already extracted, skipping reprocessing",
				logging.F("document_id", documentID))
			endSpan(fetchSpan, nil)
			return nil
		}
		// Falls through: a prior attempt never finished (crashed mid-pipeline
		// or is still queued), so this worker picks it back up.
	}

	if err := p.blobs.Put(fetchCtx, job.UserID, hash, job.MimeType, data); err != nil {
		endSpan(fetchSpan, err)
		return p.fail(ctx, documentID, "pipeline.fetching", err)
	}
	endSpan(fetchSpan, nil)

	// fetching -> extracting
	extractCtx, extractSpan := startTransitionSpan(ctx, "extracting", documentID)
	outcome, err := p.router.ExtractText(extractCtx, job.UserID, job.MimeType, data)
	if err != nil {
		endSpan(extractSpan, err)
		return p.fail(ctx, documentID, "pipeline.extracting", err)
	}
	if outcome.SkippedReason != "" {
		if err := p.graph.UpdateExtraction(extractCtx, documentID, graph.ExtractionSkipped, graph.MethodNone, nil, "", nil, outcome.SkippedReason); err != nil {
			endSpan(extractSpan, err)
			return mgerrors.ClassifyError(err, "pipeline.extracting")
		}
		log.Info("document skipped", logging.F("reason", outcome.SkippedReason), logging.F("document_id", documentID))
		endSpan(extractSpan, nil)
		return nil
	}
	endSpan(extractSpan, nil)

	// extracting -> classifying
	classifyCtx, classifySpan := startTransitionSpan(ctx, "classifying", documentID)
	docType, _, err := p.classifier.Classify(classifyCtx, job.UserID, outcome.Text)
	if err != nil {
		endSpan(classifySpan, err)
		return p.fail(ctx, documentID, "pipeline.classifying", err)
	}
	if docType == graph.DocOther {
		if err := p.graph.UpdateExtraction(classifyCtx, documentID, graph.ExtractionSkipped, graph.ExtractionMethod(outcome.Method), nil, outcome.Text, nil, "out_of_scope"); err != nil {
			endSpan(classifySpan, err)
			return mgerrors.ClassifyError(err, "pipeline.classifying")
		}
		log.Info("document out of scope", logging.F("document_id", documentID))
		endSpan(classifySpan, nil)
		return nil
	}
	classifySpan.SetAttributes(attribute.String("mailgraph.document_type", string(docType)))
	endSpan(classifySpan, nil)

	// classifying -> populating
	populateCtx, populateSpan := startTransitionSpan(ctx, "populating", documentID)
	fields, method, confidence, err := p.populate(populateCtx, job, documentID, string(docType), outcome)
	endSpan(populateSpan, err)
	if err != nil {
		return p.fail(ctx, documentID, "pipeline.populating", err)
	}

	// populating -> resolving
	resolveCtx, resolveSpan := startTransitionSpan(ctx, "resolving", documentID)
	err = p.resolve(resolveCtx, job.UserID, documentID, docType, fields)
	endSpan(resolveSpan, err)
	if err != nil {
		return p.fail(ctx, documentID, "pipeline.resolving", err)
	}

	// resolving -> completed
	confPtr := &confidence
	if err := p.graph.UpdateExtraction(ctx, documentID, graph.ExtractionExtracted, method, confPtr, outcome.Text, toAnyMap(fields), ""); err != nil {
		return mgerrors.ClassifyError(err, "pipeline.resolving")
	}
	log.Info("document extraction completed", logging.F("document_id", documentID), logging.F("document_type", string(docType)))
	return nil
}

// populate implements the classifying->populating transition: template
// cache lookup+verify, falling back to an LLM field extraction and
// synthesizing a new template on success (spec.md §4.8).
func (p *Pipeline) populate(ctx context.Context, job Job, documentID, docType string, outcome router.TextOutcome) (map[string]string, graph.ExtractionMethod, float64, error) {
	senderDomain := job.SenderDomain
	key := templatecache.Key{
		UserID:            job.UserID,
		SenderDomain:      senderDomain,
		DocumentType:      docType,
		LayoutFingerprint: layoutFingerprint(firstPage(outcome.Text)),
	}

	tmpl, err := p.templates.Lookup(ctx, key)
	if err != nil {
		return nil, graph.MethodNone, 0, fmt.Errorf("looking up template: %w", err)
	}

	if tmpl != nil {
		fields, confidence := templatecache.Apply(tmpl, outcome.Text)
		if confidence >= verifyConfidenceThreshold {
			if err := p.templates.RecordHit(ctx, tmpl.ID); err != nil {
				p.logger.Warn("recording template hit failed", logging.F("error", err.Error()))
			}
			return fields, graph.MethodTemplate, confidence, nil
		}
		if streak, err := p.templates.RecordVerifyFailure(ctx, tmpl.ID); err != nil {
			p.logger.Warn("recording template verify failure failed", logging.F("error", err.Error()))
		} else {
			p.logger.Info("template verification failed, falling back to LLM",
				logging.F("template_id", tmpl.ID), logging.F("consecutive_failures", streak))
		}
	}

	fields, err := p.router.ExtractFieldsLLM(ctx, job.UserID, docType, outcome.Text)
	if err != nil {
		return nil, graph.MethodNone, 0, err
	}

	if fieldMap, ok := templatecache.Synthesize(fields, outcome.Text); ok {
		if _, err := p.templates.Store(ctx, key, fieldMap); err != nil {
			p.logger.Warn("storing synthesized template failed", logging.F("error", err.Error()))
		}
	}

	return fields, graph.MethodLLM, 1.0, nil
}

// resolve implements the populating->resolving transition: normalizes the
// document's counterparty into a Party and (re)writes its Transaction rows
// atomically.
func (p *Pipeline) resolve(ctx context.Context, userID, documentID string, docType graph.DocumentType, fields map[string]string) error {
	var partyID *string
	if vendor := fields["vendor_name"]; vendor != "" {
		partyType := graph.PartyVendor
		if docType == graph.DocSalesOrder || docType == graph.DocDeliveryNote {
			partyType = graph.PartyCustomer
		}
		party, err := p.graph.ResolveParty(ctx, userID, vendor, partyType)
		if err != nil {
			return fmt.Errorf("resolving party: %w", err)
		}
		partyID = &party.ID
	}

	txn := &graph.Transaction{
		UserID:     userID,
		DocumentID: documentID,
		RowIndex:   0,
		PartyID:    partyID,
		Amount:     amountOrZero(fields["total_amount"]),
		Currency:   "USD",
		Kind:       transactionKindFor(docType),
		Metadata:   toAnyMap(fields),
	}
	return p.graph.ReplaceTransactions(ctx, documentID, []*graph.Transaction{txn})
}

// fail marks a Document terminally failed and returns a classified error for
// the caller's retry decision. A transient classification leaves the
// Document at its current (non-failed) status so a retried job can resume;
// only a permanent classification persists extraction_status=failed, since a
// retryable job may still complete on its next attempt.
func (p *Pipeline) fail(ctx context.Context, documentID, stage string, err error) error {
	pe := mgerrors.ClassifyError(err, stage)
	if mgerrors.IsErrorRetryable(pe) {
		p.logger.Warn("transient extraction failure, will retry", logging.F("document_id", documentID), logging.F("error", pe.Error()))
		return pe
	}
	if updateErr := p.graph.UpdateExtraction(ctx, documentID, graph.ExtractionFailed, graph.MethodNone, nil, "", nil, pe.Error()); updateErr != nil {
		p.logger.Error("failed to persist terminal failure", logging.F("document_id", documentID), logging.F("error", updateErr.Error()))
	}
	return pe
}

func (p *Pipeline) acquire(ctx context.Context, key string) (*documentLease, error) {
	return acquireLease(ctx, p.leasePool, key)
}

func toAnyMap(fields map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func amountOrZero(s string) string {
	if s == "" {
		return "0.00"
	}
	return s
}

func transactionKindFor(dt graph.DocumentType) graph.TransactionKind {
	switch dt {
	case graph.DocInvoice:
		return graph.TxnInvoice
	case graph.DocReceipt:
		return graph.TxnReceipt
	default:
		return graph.TxnOther
	}
}
