// Package document turns matched certificate files into raw policy date
// candidates. A Processor never retries; one failure is one piece of
// evidence for the classifier.
package document

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/model"
	"github.com/sells-group/coi-audit/internal/ocr"
)

// Extraction is the success payload of a Processor.
type Extraction struct {
	Candidates []model.RawDateCandidate `json:"candidates"`
	Notes      []string                 `json:"notes,omitempty"`
}

// Processor processes one matched document. Failures are returned as
// *Error values.
type Processor interface {
	Process(ctx context.Context, entry listing.Entry) (*Extraction, error)
}

// TextProcessor extracts the text layer with an ocr.Extractor and scans it
// for policy rows.
type TextProcessor struct {
	extractor ocr.Extractor
}

// NewTextProcessor creates a TextProcessor.
func NewTextProcessor(extractor ocr.Extractor) *TextProcessor {
	return &TextProcessor{extractor: extractor}
}

// Process implements Processor.
func (p *TextProcessor) Process(ctx context.Context, entry listing.Entry) (*Extraction, error) {
	log := zap.L().With(zap.String("file", entry.Filename))

	text, err := p.extractor.ExtractText(ctx, entry.Path)
	if err != nil {
		derr := Fail(entry.Path, err)
		log.Warn("document: extraction failed", zap.String("category", string(derr.Category)), zap.Error(err))
		return nil, derr
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("document: empty text layer")
		return nil, &Error{Category: CategoryEmptyText, Path: entry.Path}
	}

	candidates, notes := ExtractCandidates(text, entry.Filename)
	if len(candidates) == 0 {
		notes = append(notes, "no policy rows with dates found in "+strconv.Itoa(lineCount(text))+" lines")
	}
	log.Debug("document: processed", zap.Int("candidates", len(candidates)))
	return &Extraction{Candidates: candidates, Notes: notes}, nil
}

func lineCount(text string) int {
	return strings.Count(strings.TrimRight(text, "\n"), "\n") + 1
}
