package document

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/sells-group/coi-audit/internal/ocr"
)

// Category classifies a processing failure for reports and review hints.
type Category string

const (
	CategoryNotFound   Category = "not_found"
	CategoryPermission Category = "permission"
	CategoryTimeout    Category = "timeout"
	CategoryCanceled   Category = "canceled"
	CategoryEmptyText  Category = "empty_text"
	CategoryRemote     Category = "remote"
	CategoryExtraction Category = "extraction"
)

// Error is the failure payload of a Processor.
type Error struct {
	Category Category
	Path     string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "document: " + string(e.Category) + ": " + e.Path
	}
	return "document: " + string(e.Category) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail wraps err as a processing failure for path, categorizing it.
func Fail(path string, err error) *Error {
	return &Error{Category: Categorize(err), Path: path, Err: err}
}

// Categorize returns the failure category of err. Errors already carrying a
// category keep it; everything else is inferred from the chain, falling back
// to message heuristics for errors that lost their type on the way.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, os.ErrNotExist):
		return CategoryNotFound
	case errors.Is(err, os.ErrPermission):
		return CategoryPermission
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	var se *ocr.StatusError
	if errors.As(err, &se) {
		return CategoryRemote
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such file"):
		return CategoryNotFound
	case strings.Contains(msg, "permission denied"):
		return CategoryPermission
	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "deadline exceeded"):
		return CategoryTimeout
	}
	return CategoryExtraction
}
