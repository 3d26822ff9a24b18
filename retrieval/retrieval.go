// Package retrieval ingests documents into a VectorIndex and retrieves the
// passages most relevant to a question.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ineyio/creditgate"
	"github.com/ineyio/creditgate/chunker"
)

// Orchestrator wires chunking, embedding and the vector index together.
type Orchestrator struct {
	embedder    creditgate.Embedder
	index       creditgate.VectorIndex
	chunkSize   int
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
	logger      *slog.Logger
}

var _ creditgate.Retriever = (*Orchestrator)(nil)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) { o.chunkSize = n }
}

// WithConcurrency bounds concurrent embedding calls during ingest.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithLimiter gates every embedding call. Nil disables rate limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithTimeout bounds every embedding call. Zero means
// creditgate.DefaultProviderTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates a retrieval orchestrator.
func New(embedder creditgate.Embedder, index creditgate.VectorIndex, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		embedder:    embedder,
		index:       index,
		chunkSize:   chunker.DefaultChunkSize,
		concurrency: creditgate.DefaultConcurrency,
		timeout:     creditgate.DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.chunkSize <= 0 {
		o.chunkSize = chunker.DefaultChunkSize
	}
	if o.concurrency <= 0 {
		o.concurrency = creditgate.DefaultConcurrency
	}
	if o.timeout <= 0 {
		o.timeout = creditgate.DefaultProviderTimeout
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Ingest chunks and embeds text, then replaces the document's indexed
// chunks in one Upsert. If any embedding fails the index is left untouched.
// It returns the number of chunks indexed.
func (o *Orchestrator) Ingest(ctx context.Context, documentID, text string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, fmt.Errorf("%w: document_id is required", creditgate.ErrMalformedRequest)
	}

	chunks := chunker.Split(documentID, text, o.chunkSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range chunks {
		g.Go(func() error {
			v, err := o.embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("creditgate/retrieval: embed chunk %s: %w", chunks[i].ID, err)
			}
			chunks[i].Vector = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := o.index.Upsert(ctx, documentID, chunks); err != nil {
		return 0, fmt.Errorf("creditgate/retrieval: upsert %s: %w", documentID, err)
	}

	o.logger.Info("document ingested", "document", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// Retrieve returns up to k chunks of the document ranked by similarity to
// question. A document without indexed chunks yields a
// *creditgate.DocumentNotFoundError.
func (o *Orchestrator) Retrieve(ctx context.Context, documentID, question string, k int) ([]creditgate.Chunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", creditgate.ErrMalformedRequest)
	}

	n, err := o.index.Count(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("creditgate/retrieval: count %s: %w", documentID, err)
	}
	if n == 0 {
		return nil, &creditgate.DocumentNotFoundError{DocumentID: documentID}
	}

	q, err := o.embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("creditgate/retrieval: embed question: %w", err)
	}

	scored, err := o.index.TopK(ctx, documentID, q, k)
	if err != nil {
		return nil, fmt.Errorf("creditgate/retrieval: rank %s: %w", documentID, err)
	}
	if len(scored) == 0 && k > 0 {
		return nil, &creditgate.DocumentNotFoundError{DocumentID: documentID}
	}

	out := make([]creditgate.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	o.logger.Debug("retrieved", "document", documentID, "k", k, "hits", len(out))
	return out, nil
}

// Delete removes a document from the index.
func (o *Orchestrator) Delete(ctx context.Context, documentID string) error {
	return o.index.Delete(ctx, documentID)
}

// embed waits for the rate limiter, then calls the embedder under the
// per-call timeout. Expiry is reported as a *creditgate.ProviderError
// tagged with creditgate.ErrProviderTimeout.
func (o *Orchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	v, err := o.embedder.Embed(cctx, text)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, creditgate.ErrProviderTimeout) {
			return nil, creditgate.TransportError(cctx, "embedder", err)
		}
		return nil, err
	}
	return v, nil
}
