package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// Repository persists the graph entities behind a pgx pool.
type Repository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRepository builds a graph Repository.
func NewRepository(pool *pgxpool.Pool, logger logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{pool: pool, logger: logger.With(logging.F("component", "graph"))}
}

// UpsertMessage inserts a Message or returns the existing row's ID,
// matching spec.md §4.3 step 3: rows already present are not re-fetched.
func (r *Repository) UpsertMessage(ctx context.Context, m *Message) (id string, created bool, err error) {
	const q = `
INSERT INTO messages (user_id, provider_message_id, provider_thread_id, sender, recipients, subject, received_at, body_text, snippet)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, provider_message_id) DO NOTHING
RETURNING id`

	var newID string
	err = r.pool.QueryRow(ctx, q, m.UserID, m.ProviderMessageID, m.ProviderThreadID, m.Sender, m.Recipients, m.Subject, nullableTime(m.ReceivedAt), m.BodyText, m.Snippet).Scan(&newID)
	if err == nil {
		return newID, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("upserting message: %w", err)
	}

	const existingQ = `SELECT id FROM messages WHERE user_id = $1 AND provider_message_id = $2`
	if err := r.pool.QueryRow(ctx, existingQ, m.UserID, m.ProviderMessageID).Scan(&newID); err != nil {
		return "", false, fmt.Errorf("loading existing message: %w", err)
	}
	return newID, false, nil
}

// SetQualification writes a Message's qualification fields exactly once;
// the spec.md §3 invariant (never re-null) is enforced by the WHERE clause.
func (r *Repository) SetQualification(ctx context.Context, messageID string, qualified bool, stage QualificationStage, confidence float64, reason string) error {
	const q = `
UPDATE messages
SET is_qualified = $2, qualification_stage = $3, qualification_confidence = $4, qualification_reason = $5, qualified_at = now()
WHERE id = $1 AND is_qualified IS NULL`
	tag, err := r.pool.Exec(ctx, q, messageID, qualified, string(stage), confidence, reason)
	if err != nil {
		return fmt.Errorf("setting qualification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s already qualified or not found", messageID)
	}
	return nil
}

// CreateAttachmentDescriptor records one attachment discovered on a Message.
func (r *Repository) CreateAttachmentDescriptor(ctx context.Context, a *AttachmentDescriptor) (string, error) {
	const q = `
INSERT INTO attachment_descriptors (user_id, message_id, provider_attachment_id, filename, mime_type, declared_size, download_state)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (message_id, provider_attachment_id) DO UPDATE SET filename = EXCLUDED.filename
RETURNING id`
	var id string
	err := r.pool.QueryRow(ctx, q, a.UserID, a.MessageID, a.ProviderAttachmentID, a.Filename, a.MimeType, a.DeclaredSize, string(a.DownloadState)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("creating attachment descriptor: %w", err)
	}
	return id, nil
}

// SetDownloadState transitions an AttachmentDescriptor's download_state.
func (r *Repository) SetDownloadState(ctx context.Context, id string, state DownloadState) error {
	const q = `UPDATE attachment_descriptors SET download_state = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, string(state))
	return err
}

// CreateDocumentWithLink implements the content-addressed dedup invariant
// (spec.md §3): if a Document with this user's content_hash already
// exists, only a new MessageDocumentLink is created; otherwise both the
// Document and its link are created in one transaction. Grounded on
// storage/attachments.go's CreateAttachmentWithSource (source+link in one
// tx) adapted to the Document/MessageDocumentLink shape.
func (r *Repository) CreateDocumentWithLink(ctx context.Context, doc *Document, messageID string) (documentID string, reused bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID string
	err = tx.QueryRow(ctx, `SELECT id FROM documents WHERE user_id = $1 AND content_hash = $2`, doc.UserID, doc.ContentHash).Scan(&existingID)
	switch {
	case err == nil:
		documentID = existingID
		reused = true
	case errors.Is(err, pgx.ErrNoRows):
		fieldsJSON, mErr := json.Marshal(doc.ExtractedFields)
		if mErr != nil {
			return "", false, fmt.Errorf("marshaling extracted fields: %w", mErr)
		}
		newID := uuid.NewString()
		_, err = tx.Exec(ctx, `
INSERT INTO documents (id, user_id, source_attachment_id, storage_key, content_hash, document_type, extraction_status, extraction_method, extracted_fields)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			newID, doc.UserID, doc.SourceAttachmentID, doc.StorageKey, doc.ContentHash, string(doc.DocumentType), string(doc.ExtractionStatus), string(doc.ExtractionMethod), fieldsJSON)
		if err != nil {
			return "", false, fmt.Errorf("creating document: %w", err)
		}
		documentID = newID
	default:
		return "", false, fmt.Errorf("checking for existing document: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO message_document_links (user_id, message_id, document_id)
VALUES ($1, $2, $3)
ON CONFLICT (message_id, document_id) DO NOTHING`, doc.UserID, messageID, documentID)
	if err != nil {
		return "", false, fmt.Errorf("linking message to document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("committing document creation: %w", err)
	}

	if reused {
		r.logger.Debug("reused existing document for duplicate content_hash", logging.F("document_id", documentID), logging.F("message_id", messageID))
	}
	return documentID, reused, nil
}

// GetExtractionStatus returns a Document's current extraction_status,
// used by the pipeline's content-hash dedup check (spec.md §4.6: a reused
// Document that already finished extraction needs no reprocessing).
func (r *Repository) GetExtractionStatus(ctx context.Context, documentID string) (ExtractionStatus, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT extraction_status FROM documents WHERE id = $1`, documentID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("fetching document extraction status: %w", err)
	}
	return ExtractionStatus(status), nil
}

// UpdateExtraction persists a Document's extraction outcome. Only one
// worker at a time should hold this Document's lease (spec.md §3/§5); the
// caller is responsible for that serialization.
func (r *Repository) UpdateExtraction(ctx context.Context, documentID string, status ExtractionStatus, method ExtractionMethod, confidence *float64, text string, fields map[string]interface{}, lastErr string) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshaling extracted fields: %w", err)
	}
	const q = `
UPDATE documents
SET extraction_status = $2, extraction_method = $3, confidence = $4, extracted_text = $5,
    extracted_fields = $6, last_error = $7, attempt_count = attempt_count + 1, updated_at = now()
WHERE id = $1`
	_, err = r.pool.Exec(ctx, q, documentID, string(status), string(method), confidence, text, fieldsJSON, lastErr)
	if err != nil {
		return fmt.Errorf("updating document extraction: %w", err)
	}
	return nil
}

// ResolveParty looks up a Party by its normalized_name, creating one if
// absent, and appends displayName as a new alias if it differs from any
// alias already recorded — merging on alias addition per spec.md §3.
func (r *Repository) ResolveParty(ctx context.Context, userID, displayName string, partyType PartyType) (*Party, error) {
	normalized := NormalizeKey(displayName)
	if normalized == "" {
		return nil, fmt.Errorf("party display name normalizes to empty string")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var p Party
	err = tx.QueryRow(ctx, `
SELECT id, user_id, normalized_name, display_name, party_type, aliases, created_at, updated_at
FROM parties WHERE user_id = $1 AND normalized_name = $2 FOR UPDATE`, userID, normalized).
		Scan(&p.ID, &p.UserID, &p.NormalizedName, &p.DisplayName, &p.PartyType, &p.Aliases, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		id := uuid.NewString()
		now := time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO parties (id, user_id, normalized_name, display_name, party_type, aliases)
VALUES ($1, $2, $3, $4, $5, $6)`, id, userID, normalized, displayName, string(partyType), []string{displayName})
		if err != nil {
			return nil, fmt.Errorf("creating party: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing party creation: %w", err)
		}
		return &Party{ID: id, UserID: userID, NormalizedName: normalized, DisplayName: displayName, PartyType: partyType, Aliases: []string{displayName}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading party: %w", err)
	}

	if !containsFold(p.Aliases, displayName) {
		p.Aliases = append(p.Aliases, displayName)
		_, err = tx.Exec(ctx, `UPDATE parties SET aliases = $2, updated_at = now() WHERE id = $1`, p.ID, p.Aliases)
		if err != nil {
			return nil, fmt.Errorf("updating party aliases: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing party resolution: %w", err)
	}
	return &p, nil
}

// CreateTransaction records one financial fact extracted from a Document.
func (r *Repository) CreateTransaction(ctx context.Context, t *Transaction) (string, error) {
	lineItemsJSON, err := json.Marshal(t.LineItems)
	if err != nil {
		return "", fmt.Errorf("marshaling line items: %w", err)
	}
	metadataJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}

	id := uuid.NewString()
	const q = `
INSERT INTO transactions (id, user_id, document_id, row_index, party_id, amount, currency, transaction_date, kind, line_items, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.pool.Exec(ctx, q, id, t.UserID, t.DocumentID, t.RowIndex, t.PartyID, t.Amount, t.Currency, t.TransactionDate, string(t.Kind), lineItemsJSON, metadataJSON)
	if err != nil {
		return "", fmt.Errorf("creating transaction: %w", err)
	}
	return id, nil
}

// ReplaceTransactions implements spec.md §4.9's "atomic replace all
// Transactions for Document" operation: every existing row for documentID
// is deleted and the given rows are inserted in one transaction, keyed by
// (document_id, row_index) per §4.6's idempotence requirement so a crash
// mid-re-extraction cannot leave a mix of old and new rows.
func (r *Repository) ReplaceTransactions(ctx context.Context, documentID string, txns []*Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clearing existing transactions: %w", err)
	}

	for i, t := range txns {
		lineItemsJSON, err := json.Marshal(t.LineItems)
		if err != nil {
			return fmt.Errorf("marshaling line items: %w", err)
		}
		metadataJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		id := uuid.NewString()
		const q = `
INSERT INTO transactions (id, user_id, document_id, row_index, party_id, amount, currency, transaction_date, kind, line_items, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		if _, err := tx.Exec(ctx, q, id, t.UserID, documentID, i, t.PartyID, t.Amount, t.Currency, t.TransactionDate, string(t.Kind), lineItemsJSON, metadataJSON); err != nil {
			return fmt.Errorf("inserting transaction row %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction replacement: %w", err)
	}
	return nil
}

// DeleteDocument enforces §4.9's soft invariant: a Document with one or
// more Transactions cannot be deleted unless those Transactions are removed
// first in the same unit of work.
func (r *Repository) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var txnCount int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE document_id = $1`, documentID).Scan(&txnCount); err != nil {
		return fmt.Errorf("counting transactions: %w", err)
	}
	if txnCount > 0 {
		return fmt.Errorf("cannot delete document %s: %d transactions still attached", documentID, txnCount)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM message_document_links WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting message links: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return tx.Commit(ctx)
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
