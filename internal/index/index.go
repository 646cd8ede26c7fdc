// Package index writes search documents in bulk to Elasticsearch or to a
// local SQLite document table.
package index

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrBulkRejected is returned when the backend rejects a bulk request as
	// a whole. Per-document failures are reported in BulkResult instead.
	ErrBulkRejected = errors.New("index: bulk request rejected")

	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("index: document not found")
)

// Action is one document write: Body is stored under ID in Index,
// replacing any previous version.
type Action struct {
	Index string
	ID    string
	Body  any
}

// ItemFailure describes a document the backend refused.
type ItemFailure struct {
	ID     string
	Status int
	Reason string
}

// BulkResult summarises a Bulk call that reached the backend.
type BulkResult struct {
	Indexed int
	Failed  []ItemFailure
}

func (r *BulkResult) merge(o BulkResult) {
	r.Indexed += o.Indexed
	r.Failed = append(r.Failed, o.Failed...)
}

// Loader writes documents to a search index.
type Loader interface {
	// Bulk submits every action. A returned error means the backend could
	// not be reached or rejected a request wholesale; per-document failures
	// are only reported in the result.
	Bulk(ctx context.Context, actions iter.Seq[Action]) (BulkResult, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
