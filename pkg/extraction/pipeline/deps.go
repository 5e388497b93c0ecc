package pipeline

import (
	"context"

	"github.com/otherjamesbrown/mailgraph/pkg/extraction/classify"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/router"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/templatecache"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/storage"
)

// AttachmentFetcher resolves one attachment's raw bytes via C2. A concrete
// implementation wraps a mailsync/provider.Adapter constructed from the
// user's current credential; kept as a narrow interface here so the
// pipeline does not depend on provider or credential internals directly.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, userID, providerName, providerMessageID, providerAttachmentID string) ([]byte, error)
}

// Job is the input to one pipeline run: everything C5's attachment_extract
// job payload carries, shaped for direct unmarshaling from
// jobqueue.Job.Payload.
type Job struct {
	UserID               string `json:"user_id"`
	MessageID            string `json:"message_id"`
	AttachmentID         string `json:"attachment_id"`
	ProviderName         string `json:"provider_name"`
	ProviderMessageID    string `json:"provider_message_id"`
	ProviderAttachmentID string `json:"provider_attachment_id"`
	SenderDomain         string `json:"sender_domain"`
	Filename             string `json:"filename"`
	MimeType             string `json:"mime_type"`
}

// GraphStore narrows graph.Repository to what the pipeline needs, for
// substitutability in tests.
type GraphStore interface {
	CreateDocumentWithLink(ctx context.Context, doc *graph.Document, messageID string) (documentID string, reused bool, err error)
	GetExtractionStatus(ctx context.Context, documentID string) (graph.ExtractionStatus, error)
	UpdateExtraction(ctx context.Context, documentID string, status graph.ExtractionStatus, method graph.ExtractionMethod, confidence *float64, text string, fields map[string]interface{}, lastErr string) error
	ResolveParty(ctx context.Context, userID, displayName string, partyType graph.PartyType) (*graph.Party, error)
	ReplaceTransactions(ctx context.Context, documentID string, txns []*graph.Transaction) error
	SetDownloadState(ctx context.Context, id string, state graph.DownloadState) error
}

var (
	_ GraphStore = (*graph.Repository)(nil)
)

// TemplateStore narrows templatecache.Repository to what the pipeline
// needs.
type TemplateStore interface {
	Lookup(ctx context.Context, key templatecache.Key) (*templatecache.Template, error)
	Store(ctx context.Context, key templatecache.Key, fieldMap map[string]templatecache.FieldRule) (*templatecache.Template, error)
	RecordHit(ctx context.Context, id string) error
	RecordVerifyFailure(ctx context.Context, id string) (int, error)
}

var _ TemplateStore = (*templatecache.Repository)(nil)

// BlobStore is storage.BlobStore, restated here to keep the pipeline's
// import surface self-documenting.
type BlobStore = storage.BlobStore

// TextRouter is what C7 exposes to the extracting transition.
type TextRouter interface {
	ExtractText(ctx context.Context, userID, mimeType string, data []byte) (router.TextOutcome, error)
	ExtractFieldsLLM(ctx context.Context, userID, documentType, text string) (map[string]string, error)
}

var _ TextRouter = (*router.Router)(nil)

// DocClassifier is what C6's classifying transition calls.
type DocClassifier interface {
	Classify(ctx context.Context, userID, text string) (graph.DocumentType, float64, error)
}

var _ DocClassifier = (*classify.Classifier)(nil)
