package ingestrun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/jobqueue"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/provider"
)

type fakeStore struct {
	messages    map[string]*graph.Message
	nextID      int
	descriptors int
}

func newFakeStore() *fakeStore { return &fakeStore{messages: map[string]*graph.Message{}} }

func (f *fakeStore) UpsertMessage(ctx context.Context, m *graph.Message) (string, bool, error) {
	for id, existing := range f.messages {
		if existing.ProviderMessageID == m.ProviderMessageID {
			return id, false, nil
		}
	}
	f.nextID++
	id := "msg-" + string(rune('0'+f.nextID))
	f.messages[id] = m
	return id, true, nil
}

func (f *fakeStore) CreateAttachmentDescriptor(ctx context.Context, a *graph.AttachmentDescriptor) (string, error) {
	f.descriptors++
	return "att-" + string(rune('0'+f.descriptors)), nil
}

type fakeQualifier struct {
	qualified bool
	err       error
}

func (f *fakeQualifier) Qualify(ctx context.Context, userID, messageID, subject, body string) (bool, error) {
	return f.qualified, f.err
}

type fakeEnqueuer struct {
	jobs []jobqueue.Job
}

func (f *fakeEnqueuer) Enqueue(job jobqueue.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func baseMessage() *provider.Message {
	return &provider.Message{
		ProviderMessageID: "pm-1",
		From:              "Vendor <billing@vendor.com>",
		To:                []string{"me@example.com"},
		Subject:           "Your invoice",
		BodyText:          "Please find attached invoice",
		ReceivedAt:        time.Now(),
		Attachments: []provider.AttachmentRef{
			{ProviderAttachmentID: "pa-1", Filename: "invoice.pdf", MimeType: "application/pdf", SizeBytes: 1024},
		},
	}
}

func TestHandle_QualifiedMessageEnqueuesAttachmentJob(t *testing.T) {
	store := newFakeStore()
	qual := &fakeQualifier{qualified: true}
	queue := &fakeEnqueuer{}
	h := New("user-1", provider.Gmail, store, qual, queue, nil)

	err := h.Handle(context.Background(), baseMessage())
	require.NoError(t, err)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, jobqueue.LaneAttachments, queue.jobs[0].Lane)
	assert.Equal(t, jobqueue.KindAttachmentExtract, queue.jobs[0].Kind)
}

func TestHandle_UnqualifiedMessageSkipsEnqueue(t *testing.T) {
	store := newFakeStore()
	qual := &fakeQualifier{qualified: false}
	queue := &fakeEnqueuer{}
	h := New("user-1", provider.Gmail, store, qual, queue, nil)

	err := h.Handle(context.Background(), baseMessage())
	require.NoError(t, err)
	assert.Empty(t, queue.jobs)
}

func TestHandle_AlreadyIngestedMessageSkipsQualification(t *testing.T) {
	store := newFakeStore()
	store.messages["msg-existing"] = &graph.Message{ProviderMessageID: "pm-1"}
	qual := &fakeQualifier{err: assert.AnError}
	queue := &fakeEnqueuer{}
	h := New("user-1", provider.Gmail, store, qual, queue, nil)

	err := h.Handle(context.Background(), baseMessage())
	require.NoError(t, err)
	assert.Empty(t, queue.jobs)
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "vendor.com", senderDomain("Vendor <billing@vendor.com>"))
	assert.Equal(t, "", senderDomain("not-an-address"))
}
