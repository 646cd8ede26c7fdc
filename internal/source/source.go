// Package source extracts changed titles from the relational movie catalogue.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/kalambet/moviesync/internal/retry"
)

// ErrInvalidSchema is returned by Connect for a schema name that is not a
// plain SQL identifier.
var ErrInvalidSchema = errors.New("source: invalid schema name")

// Config selects the database and shapes the extraction.
type Config struct {
	// Driver is a database/sql driver name: "pgx" or "sqlite".
	Driver string
	DSN    string
	// Schema qualifies every catalogue table.
	Schema string
	// ChunkSize caps the number of working-set rows per Extract. It is
	// exceeded only when more rows than that share one change time.
	ChunkSize int
}

func (c Config) validate() error {
	if !identRe.MatchString(c.Schema) {
		return fmt.Errorf("%w: %q", ErrInvalidSchema, c.Schema)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("source: chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

// Extractor owns a single connection to the catalogue for its lifetime.
type Extractor struct {
	db        *sql.DB
	conn      *sql.Conn
	schema    string
	chunkSize int
	logger    *slog.Logger

	workingSetSQL string
	boundarySQL   string
}

// Connect opens the database and pins one connection, retrying establishment
// with backoff according to policy. Each failed attempt is logged.
func Connect(ctx context.Context, cfg Config, policy retry.Policy, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	var conn *sql.Conn
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		c, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		if err := c.PingContext(ctx); err != nil {
			c.Close()
			return err
		}
		conn = c
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		logger.Error("could not connect to source store",
			"driver", cfg.Driver, "attempt", attempt, "retry_in", wait, "error", err)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to source store: %w", err)
	}
	logger.Info("connected to source store", "driver", cfg.Driver, "schema", cfg.Schema)

	return &Extractor{
		db:            db,
		conn:          conn,
		schema:        cfg.Schema,
		chunkSize:     cfg.ChunkSize,
		logger:        logger,
		workingSetSQL: workingSetQuery(cfg.Schema),
		boundarySQL:   boundaryQuery(cfg.Schema),
	}, nil
}

// Close releases the pinned connection and the pool.
func (e *Extractor) Close() error {
	return errors.Join(e.conn.Close(), e.db.Close())
}

// Extract returns the titles changed after watermark, at most one record per
// title, ordered by change time. An empty result means no pending changes.
func (e *Extractor) Extract(ctx context.Context, watermark string) ([]ChangeRecord, error) {
	ids, changed, err := e.workingSet(ctx, watermark)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	aggs, err := e.details(ctx, ids, changed)
	if err != nil {
		return nil, err
	}

	out := make([]ChangeRecord, 0, len(ids))
	for _, id := range ids {
		// A title removed between the two queries has no details row.
		if a, ok := aggs[id]; ok {
			out = append(out, a.record())
		}
	}
	return out, nil
}

// changedRow is one working-set row. raw keeps the driver value so the
// boundary lookup compares against the column exactly.
type changedRow struct {
	id  string
	ts  string
	raw any
}

// workingSet returns distinct title ids ordered by their latest change time
// within the chunk, plus that change time per id.
//
// One extra row is fetched past the chunk. When it shares the change time of
// the last row, the rows at that boundary time are left for the next cycle so
// that no tied title falls behind the watermark. A chunk made entirely of one
// change time is widened to every row at that time instead.
func (e *Extractor) workingSet(ctx context.Context, watermark string) ([]string, map[string]string, error) {
	rows, err := e.changedRows(ctx, e.workingSetSQL, watermark, e.chunkSize+1)
	if err != nil {
		return nil, nil, err
	}

	if len(rows) > e.chunkSize {
		next := rows[e.chunkSize]
		rows = rows[:e.chunkSize]
		if boundary := rows[len(rows)-1]; next.ts == boundary.ts {
			cut := len(rows)
			for cut > 0 && rows[cut-1].ts == boundary.ts {
				cut--
			}
			if cut > 0 {
				rows = rows[:cut]
			} else {
				rows, err = e.changedRows(ctx, e.boundarySQL, boundary.raw)
				if err != nil {
					return nil, nil, err
				}
				e.logger.Warn("widening chunk to every title at the boundary change time",
					"changed_at", boundary.ts, "titles", len(rows), "chunk_size", e.chunkSize)
			}
		}
	}

	var ids []string
	changed := map[string]string{}
	for _, r := range rows {
		prev, seen := changed[r.id]
		if !seen {
			ids = append(ids, r.id)
		}
		changed[r.id] = LaterChangeTime(prev, r.ts)
	}

	slices.SortStableFunc(ids, func(a, b string) int {
		return CompareChangeTimes(changed[a], changed[b])
	})
	return ids, changed, nil
}

func (e *Extractor) changedRows(ctx context.Context, query string, args ...any) ([]changedRow, error) {
	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying changed titles: %w", err)
	}
	defer rows.Close()

	var out []changedRow
	for rows.Next() {
		var (
			r  changedRow
			ts changeTime
		)
		if err := rows.Scan(&r.id, &r.raw); err != nil {
			return nil, fmt.Errorf("scanning changed title: %w", err)
		}
		if b, ok := r.raw.([]byte); ok {
			r.raw = string(b)
		}
		if err := ts.Scan(r.raw); err != nil {
			return nil, fmt.Errorf("scanning changed title: %w", err)
		}
		r.ts = string(ts)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating changed titles: %w", err)
	}
	return out, nil
}

func (e *Extractor) details(ctx context.Context, ids []string, changed map[string]string) (map[string]*aggregate, error) {
	aggs := make(map[string]*aggregate, len(ids))
	for batch := range slices.Chunk(ids, maxDetailIDs) {
		if err := e.detailsBatch(ctx, batch, changed, aggs); err != nil {
			return nil, err
		}
	}
	return aggs, nil
}

func (e *Extractor) detailsBatch(ctx context.Context, ids []string, changed map[string]string, aggs map[string]*aggregate) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := e.conn.QueryContext(ctx, detailsQuery(e.schema, len(ids)), args...)
	if err != nil {
		return fmt.Errorf("querying title details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id                                string
			title, description                sql.NullString
			rating                            sql.NullFloat64
			kind, certificate                 sql.NullString
			created                           changeTime
			role, personID, personName, genre sql.NullString
		)
		if err := rows.Scan(&id, &title, &description, &rating, &kind, &certificate, &created,
			&role, &personID, &personName, &genre); err != nil {
			return fmt.Errorf("scanning title details: %w", err)
		}

		a, ok := aggs[id]
		if !ok {
			rec := ChangeRecord{
				ID:          id,
				Type:        kind.String,
				Certificate: certificate.String,
				CreatedAt:   string(created),
				UpdatedAt:   changed[id],
			}
			if title.Valid {
				rec.Title = &title.String
			}
			if description.Valid {
				rec.Description = &description.String
			}
			if rating.Valid {
				rec.Rating = &rating.Float64
			}
			a = newAggregate(rec)
			aggs[id] = a
		}
		a.addPerson(role.String, personID.String, personName.String)
		a.addGenre(genre.String)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating title details: %w", err)
	}
	return nil
}
