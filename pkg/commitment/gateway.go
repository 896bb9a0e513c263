package commitment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"misdash/pkg/metrics"
)

var tracer = otel.Tracer("misdash/commitment")

type Result struct {
	Submitted  int  `json:"submitted"`
	Reconciled bool `json:"reconciled"`
}

// Gateway is the only path that changes saved values in an Overlay.
type Gateway struct {
	store   Store
	overlay *Overlay
	mu      sync.Mutex
}

func NewGateway(store Store, overlay *Overlay) *Gateway {
	return &Gateway{store: store, overlay: overlay}
}

func (g *Gateway) Overlay() *Overlay {
	return g.overlay
}

// Load replaces the saved values with the server's current set.
func (g *Gateway) Load(ctx context.Context) error {
	people, err := g.store.List(ctx)
	if err != nil {
		return err
	}
	g.overlay.replaceSaved(people)
	log.Debugf("loaded saved values for %d people", len(people))
	return nil
}

// Submit sends the pending batch. An empty batch makes no network call. On failure
// nothing in the overlay changes and the edits stay resubmittable.
func (g *Gateway) Submit(ctx context.Context) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	batch := g.overlay.Batch()
	if len(batch) == 0 {
		metrics.Submissions.WithLabelValues("noop").Inc()
		return Result{}, nil
	}

	ctx, span := tracer.Start(ctx, "commitment.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()

	if err := g.store.Submit(ctx, batch); err != nil {
		metrics.Submissions.WithLabelValues("failed").Inc()
		span.RecordError(err)
		log.WithField("records", len(batch)).Warnf("submission: %v", err)
		if !errors.Is(err, ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		return Result{}, err
	}
	metrics.Submissions.WithLabelValues("ok").Inc()

	g.overlay.applySubmitted(batch)
	res := Result{Submitted: len(batch), Reconciled: true}
	if err := g.Load(ctx); err != nil {
		log.Warnf("reload saved values after submit: %v", err)
		res.Reconciled = false
	}
	return res, nil
}
