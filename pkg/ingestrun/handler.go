// Package ingestrun wires the Sync Coordinator (C3), Qualification Engine
// (C4), and Attachment Job Queue (C5) into the mailsync.MessageHandler that
// drives one sync pass end to end: persist the message, qualify it, and
// enqueue its attachments for extraction when it qualifies. Kept as its own
// package (rather than folded into mailsync or qualify) because it depends
// on all three components plus jobqueue, and none of those packages should
// import one another.
package ingestrun

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/otherjamesbrown/mailgraph/pkg/contentid"
	"github.com/otherjamesbrown/mailgraph/pkg/extraction/pipeline"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/jobqueue"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/provider"
	"github.com/otherjamesbrown/mailgraph/pkg/qualify"
)

// MessageStore is the subset of graph.Repository the handler needs to
// persist a Message and its attachment manifest.
type MessageStore interface {
	UpsertMessage(ctx context.Context, m *graph.Message) (id string, created bool, err error)
	CreateAttachmentDescriptor(ctx context.Context, a *graph.AttachmentDescriptor) (string, error)
}

var _ MessageStore = (*graph.Repository)(nil)

// Qualifier is the subset of qualify.Engine the handler needs.
type Qualifier interface {
	Qualify(ctx context.Context, userID, messageID, subject, body string) (bool, error)
}

var _ Qualifier = (*qualify.Engine)(nil)

// Enqueuer is the subset of jobqueue.Dispatcher the handler needs.
type Enqueuer interface {
	Enqueue(job jobqueue.Job) error
}

// Handler implements mailsync.MessageHandler, chaining C3's fetched
// messages into C4 qualification and, for qualified messages, C5 attachment
// jobs.
type Handler struct {
	userID   string
	provider provider.Name
	store    MessageStore
	qual     Qualifier
	queue    Enqueuer
	logger   logging.Logger
}

// New builds a Handler bound to one (user, provider) sync run. providerName
// identifies the adapter the caller is about to pass to
// mailsync.Coordinator.Sync, since provider.Message itself carries no
// provider tag.
func New(userID string, providerName provider.Name, store MessageStore, qual Qualifier, queue Enqueuer, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{
		userID:   userID,
		provider: providerName,
		store:    store,
		qual:     qual,
		queue:    queue,
		logger:   logger.With(logging.F("component", "ingestrun"), logging.F("user_id", userID)),
	}
}

// Handle is a mailsync.MessageHandler: persist msg, qualify it, and enqueue
// one attachment_extract job per attachment if it qualifies.
func (h *Handler) Handle(ctx context.Context, msg *provider.Message) error {
	gm := &graph.Message{
		UserID:            h.userID,
		ProviderMessageID: msg.ProviderMessageID,
		ProviderThreadID:  msg.ThreadID,
		Sender:            msg.From,
		Recipients:        msg.To,
		Subject:           msg.Subject,
		ReceivedAt:        msg.ReceivedAt,
		BodyText:          msg.BodyText,
		Snippet:           msg.Snippet,
	}
	messageID, created, err := h.store.UpsertMessage(ctx, gm)
	if err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	if !created {
		// Already ingested and (by construction of C3's IsIngested dedup
		// check) already qualified; nothing further to do.
		return nil
	}

	descriptorIDs := make(map[string]string, len(msg.Attachments))
	for _, att := range msg.Attachments {
		descriptor := &graph.AttachmentDescriptor{
			UserID:               h.userID,
			MessageID:            messageID,
			ProviderAttachmentID: att.ProviderAttachmentID,
			Filename:             att.Filename,
			MimeType:             att.MimeType,
			DeclaredSize:         att.SizeBytes,
			DownloadState:        graph.DownloadPending,
		}
		id, err := h.store.CreateAttachmentDescriptor(ctx, descriptor)
		if err != nil {
			return fmt.Errorf("recording attachment descriptor: %w", err)
		}
		descriptorIDs[att.ProviderAttachmentID] = id
	}

	qualified, err := h.qual.Qualify(ctx, h.userID, messageID, msg.Subject, msg.BodyText)
	if err != nil {
		return fmt.Errorf("qualifying message: %w", err)
	}
	if !qualified {
		return nil
	}

	domain := senderDomain(msg.From)
	for _, att := range msg.Attachments {
		payload := pipeline.Job{
			UserID:               h.userID,
			MessageID:            descriptorIDs[att.ProviderAttachmentID],
			AttachmentID:         descriptorIDs[att.ProviderAttachmentID],
			ProviderName:         string(h.provider),
			ProviderMessageID:    msg.ProviderMessageID,
			ProviderAttachmentID: att.ProviderAttachmentID,
			SenderDomain:         domain,
			Filename:             att.Filename,
			MimeType:             att.MimeType,
		}
		job, err := jobqueue.NewJob(contentid.New(contentid.TypeAttachment), jobqueue.LaneAttachments, jobqueue.KindAttachmentExtract, h.userID, payload)
		if err != nil {
			return fmt.Errorf("building attachment job: %w", err)
		}
		if err := h.queue.Enqueue(job); err != nil {
			h.logger.Warn("failed to enqueue attachment job", logging.F("attachment_id", att.ProviderAttachmentID), logging.Err(err))
			continue
		}
	}

	return nil
}

// senderDomain extracts the domain portion of a From header for the
// template cache key (spec.md §4.8's sender_domain component); a header
// mail.ParseAddress can't parse degrades to the empty string rather than
// failing the whole message.
func senderDomain(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return ""
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}
