package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/router"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/templatecache"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
)

type fakeGraph struct {
	documents       map[string]*graph.Document
	nextID          int
	replacedTxns    map[string][]*graph.Transaction
	updateErr       error
	resolvePartyErr error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{documents: map[string]*graph.Document{}, replacedTxns: map[string][]*graph.Transaction{}}
}

func (f *fakeGraph) CreateDocumentWithLink(ctx context.Context, doc *graph.Document, messageID string) (string, bool, error) {
	for id, existing := range f.documents {
		if existing.UserID == doc.UserID && existing.ContentHash == doc.ContentHash {
			return id, true, nil
		}
	}
	f.nextID++
	id := "doc-" + string(rune('0'+f.nextID))
	cp := *doc
	f.documents[id] = &cp
	return id, false, nil
}

func (f *fakeGraph) GetExtractionStatus(ctx context.Context, documentID string) (graph.ExtractionStatus, error) {
	d, ok := f.documents[documentID]
	if !ok {
		return "", errors.New("not found")
	}
	return d.ExtractionStatus, nil
}

func (f *fakeGraph) UpdateExtraction(ctx context.Context, documentID string, status graph.ExtractionStatus, method graph.ExtractionMethod, confidence *float64, text string, fields map[string]interface{}, lastErr string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	d := f.documents[documentID]
	d.ExtractionStatus = status
	d.ExtractionMethod = method
	d.LastError = lastErr
	return nil
}

func (f *fakeGraph) ResolveParty(ctx context.Context, userID, displayName string, partyType graph.PartyType) (*graph.Party, error) {
	if f.resolvePartyErr != nil {
		return nil, f.resolvePartyErr
	}
	return &graph.Party{ID: "party-1", UserID: userID, DisplayName: displayName, PartyType: partyType}, nil
}

func (f *fakeGraph) ReplaceTransactions(ctx context.Context, documentID string, txns []*graph.Transaction) error {
	f.replacedTxns[documentID] = txns
	return nil
}

func (f *fakeGraph) SetDownloadState(ctx context.Context, id string, state graph.DownloadState) error {
	return nil
}

type fakeTemplates struct {
	lookupResult *templatecache.Template
	stored       map[templatecache.Key]map[string]templatecache.FieldRule
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{stored: map[templatecache.Key]map[string]templatecache.FieldRule{}}
}

func (f *fakeTemplates) Lookup(ctx context.Context, key templatecache.Key) (*templatecache.Template, error) {
	return f.lookupResult, nil
}
func (f *fakeTemplates) Store(ctx context.Context, key templatecache.Key, fieldMap map[string]templatecache.FieldRule) (*templatecache.Template, error) {
	f.stored[key] = fieldMap
	return &templatecache.Template{ID: "tmpl-1", Key: key, FieldMap: fieldMap}, nil
}
func (f *fakeTemplates) RecordHit(ctx context.Context, id string) error             { return nil }
func (f *fakeTemplates) RecordVerifyFailure(ctx context.Context, id string) (int, error) { return 1, nil }

type fakeBlobs struct {
	puts map[string][]byte
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{puts: map[string][]byte{}} }

func (f *fakeBlobs) Put(ctx context.Context, userID, contentHash, mimeType string, data []byte) error {
	f.puts[contentHash] = data
	return nil
}
func (f *fakeBlobs) Get(ctx context.Context, contentHash string) ([]byte, error) {
	return f.puts[contentHash], nil
}

type fakeRouter struct {
	outcome   router.TextOutcome
	extractErr error
	fields    map[string]string
	fieldsErr error
}

func (f *fakeRouter) ExtractText(ctx context.Context, userID, mimeType string, data []byte) (router.TextOutcome, error) {
	return f.outcome, f.extractErr
}
func (f *fakeRouter) ExtractFieldsLLM(ctx context.Context, userID, documentType, text string) (map[string]string, error) {
	return f.fields, f.fieldsErr
}

type fakeClassifier struct {
	docType graph.DocumentType
	err     error
}

func (f *fakeClassifier) Classify(ctx context.Context, userID, text string) (graph.DocumentType, float64, error) {
	return f.docType, 0.9, f.err
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) FetchAttachment(ctx context.Context, userID, providerName, providerMessageID, providerAttachmentID string) ([]byte, error) {
	return f.data, f.err
}

func baseJob() Job {
	return Job{
		UserID:               "user-1",
		MessageID:            "msg-1",
		AttachmentID:         "att-1",
		ProviderName:         "gmail",
		ProviderMessageID:    "pm-1",
		ProviderAttachmentID: "pa-1",
		SenderDomain:         "vendor.com",
		Filename:             "invoice.pdf",
		MimeType:             "application/pdf",
	}
}

func TestProcess_CleanPathCompletes(t *testing.T) {
	g := newFakeGraph()
	tpl := newFakeTemplates()
	blobs := newFakeBlobs()
	rt := &fakeRouter{
		outcome: router.TextOutcome{Text: "INVOICE NUMBER: 1\nAmount Due: $45.00", Method: "pdf_text", Confidence: 1.0},
		fields:  map[string]string{"total_amount": "45.00", "vendor_name": "Acme Corp"},
	}
	cl := &fakeClassifier{docType: graph.DocInvoice}
	fetch := &fakeFetcher{data: []byte("%PDF-1.4 fake bytes")}

	p := New(g, tpl, blobs, rt, cl, fetch, nil, nil)
	err := p.Process(context.Background(), baseJob())
	require.NoError(t, err)

	require.Len(t, g.documents, 1)
	for id, d := range g.documents {
		assert.Equal(t, graph.ExtractionExtracted, d.ExtractionStatus)
		assert.Equal(t, graph.MethodLLM, d.ExtractionMethod)
		require.Len(t, g.replacedTxns[id], 1)
		assert.Equal(t, "45.00", g.replacedTxns[id][0].Amount)
	}
}

func TestProcess_DuplicateContentHashAlreadyExtractedSkipsReprocessing(t *testing.T) {
	g := newFakeGraph()
	data := []byte("%PDF-1.4 dup bytes")
	hash := contentHash(data)
	g.documents["existing-doc"] = &graph.Document{UserID: "user-1", ContentHash: hash, ExtractionStatus: graph.ExtractionExtracted}

	tpl := newFakeTemplates()
	blobs := newFakeBlobs()
	rt := &fakeRouter{}
	cl := &fakeClassifier{}
	fetch := &fakeFetcher{data: data}

	p := New(g, tpl, blobs, rt, cl, fetch, nil, nil)
	err := p.Process(context.Background(), baseJob())
	require.NoError(t, err)
	assert.Len(t, g.documents, 1, "no new document should be created for a dedup hit")
}

func TestProcess_OutOfScopeClassificationSkips(t *testing.T) {
	g := newFakeGraph()
	tpl := newFakeTemplates()
	blobs := newFakeBlobs()
	rt := &fakeRouter{outcome: router.TextOutcome{Text: "random text", Method: "pdf_text"}}
	cl := &fakeClassifier{docType: graph.DocOther}
	fetch := &fakeFetcher{data: []byte("%PDF-1.4 bytes")}

	p := New(g, tpl, blobs, rt, cl, fetch, nil, nil)
	err := p.Process(context.Background(), baseJob())
	require.NoError(t, err)

	for _, d := range g.documents {
		assert.Equal(t, graph.ExtractionSkipped, d.ExtractionStatus)
		assert.Equal(t, "out_of_scope", d.LastError)
	}
}

func TestProcess_ScannedPDFSkipPassesThrough(t *testing.T) {
	g := newFakeGraph()
	tpl := newFakeTemplates()
	blobs := newFakeBlobs()
	rt := &fakeRouter{outcome: router.TextOutcome{SkippedReason: router.SkipScannedPDFCostPolicy}}
	cl := &fakeClassifier{}
	fetch := &fakeFetcher{data: []byte("%PDF-1.4 bytes")}

	p := New(g, tpl, blobs, rt, cl, fetch, nil, nil)
	err := p.Process(context.Background(), baseJob())
	require.NoError(t, err)

	for _, d := range g.documents {
		assert.Equal(t, graph.ExtractionSkipped, d.ExtractionStatus)
		assert.Equal(t, router.SkipScannedPDFCostPolicy, d.LastError)
	}
}

func TestProcess_TransientFetchErrorIsRetryable(t *testing.T) {
	g := newFakeGraph()
	tpl := newFakeTemplates()
	blobs := newFakeBlobs()
	rt := &fakeRouter{}
	cl := &fakeClassifier{}
	fetch := &fakeFetcher{err: errors.New("connection refused")}

	p := New(g, tpl, blobs, rt, cl, fetch, nil, nil)
	err := p.Process(context.Background(), baseJob())
	require.Error(t, err)
	assert.True(t, mgerrors.IsErrorRetryable(err))
}

func TestProcess_PermanentExtractionErrorMarksDocumentFailed(t *testing.T) {
	g := newFakeGraph()
	tpl := newFakeTemplates()
	blobs := newFakeBlobs()
	rt := &fakeRouter{extractErr: errors.New("malformed pdf structure")}
	cl := &fakeClassifier{}
	fetch := &fakeFetcher{data: []byte("%PDF-1.4 bytes")}

	p := New(g, tpl, blobs, rt, cl, fetch, nil, nil)
	err := p.Process(context.Background(), baseJob())
	require.Error(t, err)
	assert.False(t, mgerrors.IsErrorRetryable(err))

	for _, d := range g.documents {
		assert.Equal(t, graph.ExtractionFailed, d.ExtractionStatus)
	}
}
