// Package jobqueue implements the Attachment Job Queue (C5): a durable,
// per-user work queue with three priority lanes, visibility leases, and
// bounded exponential-backoff retries. Grounded on
// pkg/enrichment/queues/redis.go's Redis sorted-set queue (ZPopMax for
// priority pop, a processing set for visibility leases, a dead-letter
// sorted set), adapted from that package's generic Message-interface
// design down to this spec's single Job shape.
package jobqueue

import (
	"encoding/json"
	"time"
)

// Lane is one of the queue's three named priority lanes (spec.md §4.5),
// checked in descending priority order.
type Lane string

const (
	LaneAttachments Lane = "attachments"
	LaneDocuments   Lane = "documents"
	LaneDefault     Lane = "default"
)

// Lanes lists every lane in descending priority order.
var Lanes = []Lane{LaneAttachments, LaneDocuments, LaneDefault}

// priority returns a lane's sort weight; higher sorts first.
func (l Lane) priority() int64 {
	switch l {
	case LaneAttachments:
		return 2
	case LaneDocuments:
		return 1
	default:
		return 0
	}
}

// Kind identifies what a Job's payload represents.
type Kind string

const (
	KindAttachmentExtract Kind = "attachment_extract"
	KindDocumentUpload    Kind = "document_upload"
	KindMaintenance       Kind = "maintenance"
)

// Job is spec.md §4.5's unit of work: {job_id, kind, user_id, payload,
// attempt, not_before}.
type Job struct {
	ID        string          `json:"job_id"`
	Lane      Lane            `json:"lane"`
	Kind      Kind            `json:"kind"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	NotBefore time.Time       `json:"not_before"`
	EnqueuedAt time.Time      `json:"enqueued_at"`

	// LeaseExpiresAt is set while a worker holds the job; zero otherwise.
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`

	// LastError carries the most recent failure, retained on the terminal
	// failed state per spec.md §4.5 ("full error trace retained").
	LastError string `json:"last_error,omitempty"`
}

// NewJob builds a Job ready for its first enqueue.
func NewJob(id string, lane Lane, kind Kind, userID string, payload interface{}) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{ID: id, Lane: lane, Kind: kind, UserID: userID, Payload: raw, EnqueuedAt: time.Now()}, nil
}
