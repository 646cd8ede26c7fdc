package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"
)

// DefaultBulkSize is the number of actions sent per _bulk request.
const DefaultBulkSize = 500

// ElasticConfig configures the Elasticsearch loader.
type ElasticConfig struct {
	URL      string
	BulkSize int
}

// Elastic is a Loader backed by the Elasticsearch _bulk API.
type Elastic struct {
	client   *elasticsearch.Client
	bulkSize int
	logger   *slog.Logger
}

// NewElastic creates a client for cfg.URL. No request is made until Ping or
// Bulk is called.
func NewElastic(cfg ElasticConfig, logger *slog.Logger) (*Elastic, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BulkSize < 1 {
		cfg.BulkSize = DefaultBulkSize
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Elastic{client: client, bulkSize: cfg.BulkSize, logger: logger}, nil
}

// Ping checks that the cluster answers.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.IsError() {
		return fmt.Errorf("pinging elasticsearch: %s", res.Status())
	}
	return nil
}

// Bulk sends actions in order, one _bulk request per bulkSize actions.
// The result accumulates over every request sent before an error.
func (e *Elastic) Bulk(ctx context.Context, actions iter.Seq[Action]) (BulkResult, error) {
	var (
		total BulkResult
		buf   bytes.Buffer
		n     int
	)
	flush := func() error {
		if n == 0 {
			return nil
		}
		r, err := e.send(ctx, buf.Bytes())
		total.merge(r)
		buf.Reset()
		n = 0
		return err
	}

	for a := range actions {
		if err := encodeAction(&buf, a); err != nil {
			return total, err
		}
		n++
		if n >= e.bulkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

type bulkMeta struct {
	Index struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

func encodeAction(buf *bytes.Buffer, a Action) error {
	var meta bulkMeta
	meta.Index.Index = a.Index
	meta.Index.ID = a.ID

	enc := json.NewEncoder(buf)
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encoding bulk metadata for %s: %w", a.ID, err)
	}
	if err := enc.Encode(a.Body); err != nil {
		return fmt.Errorf("encoding document %s: %w", a.ID, err)
	}
	return nil
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (e *Elastic) send(ctx context.Context, body []byte) (BulkResult, error) {
	res, err := e.client.Bulk(bytes.NewReader(body), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return BulkResult{}, fmt.Errorf("sending bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return BulkResult{}, fmt.Errorf("%w: %s: %s", ErrBulkRejected, res.Status(), bytes.TrimSpace(msg))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return BulkResult{}, fmt.Errorf("decoding bulk response: %w", err)
	}

	var out BulkResult
	for _, item := range br.Items {
		for op, it := range item {
			if it.Error == nil && it.Status < 300 {
				out.Indexed++
				continue
			}
			f := ItemFailure{ID: it.ID, Status: it.Status}
			if it.Error != nil {
				f.Reason = it.Error.Type + ": " + it.Error.Reason
			}
			e.logger.ErrorContext(ctx, "document rejected by index",
				"doc_id", f.ID, "op", op, "status", f.Status, "reason", f.Reason)
			out.Failed = append(out.Failed, f)
		}
	}
	return out, nil
}
