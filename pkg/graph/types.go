// Package graph implements the Entity & Graph Store (C9): the
// normalized, queryable representation of messages, documents, parties,
// and transactions that the ingestion core produces.
package graph

import "time"

// DownloadState tracks an AttachmentDescriptor's fetch lifecycle.
type DownloadState string

const (
	DownloadPending     DownloadState = "pending"
	DownloadDownloading DownloadState = "downloading"
	DownloadDownloaded  DownloadState = "downloaded"
	DownloadSkipped     DownloadState = "skipped"
	DownloadFailed      DownloadState = "failed"
)

// QualificationStage records which gate decided a Message's qualification.
type QualificationStage string

const (
	StageSubject QualificationStage = "subject"
	StageBody    QualificationStage = "body"
	StageLLM     QualificationStage = "llm"
)

// Message is one observed email, keyed by (user_id, provider_message_id).
type Message struct {
	ID                       string
	UserID                   string
	ProviderMessageID        string
	ProviderThreadID         string
	Sender                   string
	Recipients               []string
	Subject                  string
	ReceivedAt               time.Time
	BodyText                 string
	Snippet                  string
	IsQualified              *bool
	QualificationStage       QualificationStage
	QualificationConfidence  *float64
	QualificationReason      string
	QualifiedAt              *time.Time
	CreatedAt                time.Time
}

// AttachmentDescriptor is a lightweight record of an attachment found on a
// Message, created alongside it and mutated by the Extraction Pipeline.
type AttachmentDescriptor struct {
	ID                   string
	UserID               string
	MessageID            string
	ProviderAttachmentID string
	Filename             string
	MimeType             string
	DeclaredSize         int64
	DownloadState        DownloadState
	CreatedAt            time.Time
}

// DocumentType classifies the business-document kind of a Document.
type DocumentType string

const (
	DocInvoice        DocumentType = "invoice"
	DocReceipt        DocumentType = "receipt"
	DocBankStatement  DocumentType = "bank_statement"
	DocPurchaseOrder  DocumentType = "purchase_order"
	DocSalesOrder     DocumentType = "sales_order"
	DocDeliveryNote   DocumentType = "delivery_note"
	DocQuote          DocumentType = "quote"
	DocContract       DocumentType = "contract"
	DocTaxDocument    DocumentType = "tax_document"
	DocOther          DocumentType = "other"
)

// ExtractionStatus is a Document's processing lifecycle state.
type ExtractionStatus string

const (
	ExtractionQueued     ExtractionStatus = "queued"
	ExtractionExtracting ExtractionStatus = "extracting"
	ExtractionExtracted  ExtractionStatus = "extracted"
	ExtractionFailed     ExtractionStatus = "failed"
	ExtractionSkipped    ExtractionStatus = "skipped"
)

// ExtractionMethod records which tier of C7's router produced a Document's
// extracted_fields.
type ExtractionMethod string

const (
	MethodNone      ExtractionMethod = "none"
	MethodPDFText   ExtractionMethod = "pdf_text"
	MethodTemplate  ExtractionMethod = "template"
	MethodVisionOCR ExtractionMethod = "vision_ocr"
	MethodLLM       ExtractionMethod = "llm"
)

// Document is the processed form of an Attachment (or a direct upload).
type Document struct {
	ID                 string
	UserID             string
	SourceAttachmentID *string
	StorageKey         string
	ContentHash        string
	PageCount          int
	CharacterCount     int
	DocumentType       DocumentType
	ExtractionStatus   ExtractionStatus
	ExtractionMethod   ExtractionMethod
	Confidence         *float64
	ExtractedText      string
	ExtractedFields    map[string]interface{}
	LastError          string
	AttemptCount       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PartyType classifies a normalized counterparty.
type PartyType string

const (
	PartyVendor   PartyType = "vendor"
	PartyCustomer PartyType = "customer"
	PartyPerson   PartyType = "person"
	PartyOther    PartyType = "other"
)

// Party is a normalized counterparty, unique per (user_id, normalized_name).
type Party struct {
	ID             string
	UserID         string
	NormalizedName string
	DisplayName    string
	PartyType      PartyType
	Aliases        []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransactionKind classifies the financial fact a Transaction represents.
type TransactionKind string

const (
	TxnInvoice TransactionKind = "invoice"
	TxnReceipt TransactionKind = "receipt"
	TxnPayment TransactionKind = "payment"
	TxnCharge  TransactionKind = "charge"
	TxnRefund  TransactionKind = "refund"
	TxnOther   TransactionKind = "other"
)

// LineItem is one structured row of a Transaction's itemization, when the
// source Document's extracted_fields carries one.
type LineItem struct {
	Description string
	Quantity    float64
	UnitPrice   string
	Amount      string
}

// Transaction is an atomic financial fact extracted from a Document.
// RowIndex keys a Transaction within its Document (spec.md §4.6: "keyed by
// (document_id, row_index); re-extracting a Document replaces its
// Transactions atomically").
type Transaction struct {
	ID              string
	UserID          string
	DocumentID      string
	RowIndex        int
	PartyID         *string
	Amount          string // decimal string, two-scale preserved
	Currency        string
	TransactionDate *time.Time
	Kind            TransactionKind
	LineItems       []LineItem
	Metadata        map[string]interface{}
	CreatedAt       time.Time
}

// MessageDocumentLink is the many-to-many join between Message and
// Document; a forwarded duplicate produces a second link, not a second
// Document (content-addressed dedup, spec.md §3 invariant).
type MessageDocumentLink struct {
	ID         string
	UserID     string
	MessageID  string
	DocumentID string
	CreatedAt  time.Time
}
