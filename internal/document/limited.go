package document

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/sells-group/coi-audit/internal/listing"
)

// Limited throttles calls to a slow or metered Processor, such as a remote
// OCR service. Waiting for a token honors the caller's context.
type Limited struct {
	next    Processor
	limiter *rate.Limiter
}

// NewLimited wraps next with a token bucket of perSec tokens per second.
// A non-positive rate returns next unchanged.
func NewLimited(next Processor, perSec float64, burst int) Processor {
	if perSec <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Process implements Processor.
func (l *Limited) Process(ctx context.Context, entry listing.Entry) (*Extraction, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		// Wait also fails early, with ctx still live, when the next token
		// would arrive after the deadline. Only a canceled ctx is an abort.
		category := CategoryTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			category = CategoryCanceled
		}
		return nil, &Error{Category: category, Path: entry.Path, Err: err}
	}
	return l.next.Process(ctx, entry)
}
