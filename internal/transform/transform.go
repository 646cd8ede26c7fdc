// Package transform validates extracted titles and reshapes them into search
// documents.
package transform

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/kalambet/moviesync/internal/index"
	"github.com/kalambet/moviesync/internal/source"
)

// Person is an actor or writer reference inside a Document.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Document is the body stored in the movies index. Field names follow the
// index mapping.
type Document struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	IMDBRating   float64  `json:"imdb_rating"`
	Description  string   `json:"description"`
	Director     []string `json:"director"`
	Genre        []string `json:"genre"`
	ActorsNames  []string `json:"actors_names"`
	WritersNames []string `json:"writers_names"`
	Actors       []Person `json:"actors"`
	Writers      []Person `json:"writers"`
}

// Rejection names a record that failed validation.
type Rejection struct {
	ID     string
	Reason error
}

// Result is the outcome of transforming one batch.
type Result struct {
	Index     string
	Documents []Document
	Skipped   []Rejection
	// MaxUpdatedAt is the latest change time over every input record,
	// including rejected ones. Empty for an empty batch.
	MaxUpdatedAt string
}

// Actions yields one index action per document, in batch order.
func (r Result) Actions() iter.Seq[index.Action] {
	return func(yield func(index.Action) bool) {
		for i := range r.Documents {
			d := &r.Documents[i]
			if !yield(index.Action{Index: r.Index, ID: d.ID, Body: d}) {
				return
			}
		}
	}
}

var errMissingTitle = errors.New("title is missing")

// Transformer converts change records into documents, skipping invalid ones.
type Transformer struct {
	logger *slog.Logger
}

// New returns a Transformer. If logger is nil, slog.Default is used.
func New(logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{logger: logger}
}

// Transform validates every record independently. Invalid records are logged
// and reported in Result.Skipped; the rest become documents for indexName.
func (t *Transformer) Transform(ctx context.Context, indexName string, records []source.ChangeRecord) Result {
	res := Result{
		Index:     indexName,
		Documents: make([]Document, 0, len(records)),
	}
	for _, rec := range records {
		res.MaxUpdatedAt = source.LaterChangeTime(res.MaxUpdatedAt, rec.UpdatedAt)

		doc, err := t.toDocument(ctx, rec)
		if err != nil {
			t.logger.ErrorContext(ctx, "skipping invalid record", "title_id", rec.ID, "error", err)
			res.Skipped = append(res.Skipped, Rejection{ID: rec.ID, Reason: err})
			continue
		}
		res.Documents = append(res.Documents, doc)
	}
	return res
}

func (t *Transformer) toDocument(ctx context.Context, rec source.ChangeRecord) (Document, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return Document{}, fmt.Errorf("invalid id %q: %w", rec.ID, err)
	}
	if rec.Title == nil {
		return Document{}, errMissingTitle
	}
	doc := Document{
		ID:           id.String(),
		Title:        *rec.Title,
		Director:     orEmpty(rec.Directors),
		Genre:        orEmpty(rec.Genres),
		ActorsNames:  named(rec.ActorsNames),
		WritersNames: named(rec.WritersNames),
		Actors:       t.people(ctx, rec.ID, "actor", rec.Actors),
		Writers:      t.people(ctx, rec.ID, "writer", rec.Writers),
	}
	if rec.Rating != nil {
		doc.IMDBRating = *rec.Rating
	}
	if rec.Description != nil {
		doc.Description = *rec.Description
	}
	return doc, nil
}

// people drops entries without a valid id or a name; the title is kept.
func (t *Transformer) people(ctx context.Context, titleID, role string, in []source.Person) []Person {
	out := make([]Person, 0, len(in))
	for _, p := range in {
		id, err := uuid.Parse(p.ID)
		if err != nil || p.Name == "" {
			t.logger.WarnContext(ctx, "dropping invalid person",
				"title_id", titleID, "role", role, "person_id", p.ID, "name", p.Name)
			continue
		}
		out = append(out, Person{ID: id.String(), Name: p.Name})
	}
	return out
}

func named(s []string) []string {
	return slices.DeleteFunc(slices.Clone(orEmpty(s)), func(n string) bool { return n == "" })
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
