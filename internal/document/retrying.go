package document

import (
	"context"
	"errors"

	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/ocr"
	"github.com/sells-group/coi-audit/internal/resilience"
)

// Retrying re-runs a Processor when a certificate fails for a reason that
// may clear up, such as a remote OCR timeout or a 503.
type Retrying struct {
	next Processor
	cfg  resilience.RetryConfig
}

// NewRetrying wraps next. A config allowing a single attempt returns next
// unchanged.
func NewRetrying(next Processor, cfg resilience.RetryConfig) Processor {
	if cfg.MaxAttempts == 1 {
		return next
	}
	cfg.ShouldRetry = Retryable
	return &Retrying{next: next, cfg: cfg}
}

// Process implements Processor.
func (r *Retrying) Process(ctx context.Context, entry listing.Entry) (*Extraction, error) {
	cfg := r.cfg
	cfg.OnRetry = resilience.RetryLogger("document", entry.Path)
	return resilience.Do(ctx, cfg, func(ctx context.Context) (*Extraction, error) {
		return r.next.Process(ctx, entry)
	})
}

// Retryable reports whether a processing failure is worth another attempt.
func Retryable(err error) bool {
	switch Categorize(err) {
	case CategoryTimeout:
		return true
	case CategoryRemote:
		var se *ocr.StatusError
		return errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode)
	case CategoryExtraction:
		return resilience.IsTransient(err)
	}
	return false
}
