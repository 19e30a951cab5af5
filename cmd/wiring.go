package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coi-audit/internal/classify"
	"github.com/sells-group/coi-audit/internal/config"
	"github.com/sells-group/coi-audit/internal/document"
	"github.com/sells-group/coi-audit/internal/listing"
	"github.com/sells-group/coi-audit/internal/match"
	"github.com/sells-group/coi-audit/internal/normalize"
	"github.com/sells-group/coi-audit/internal/ocr"
	"github.com/sells-group/coi-audit/internal/resilience"
	"github.com/sells-group/coi-audit/internal/store"
)

// components holds the immutable collaborators shared by audit and diagnose.
type components struct {
	normalizer *normalize.Normalizer
	engine     *match.Engine
	provider   *listing.FSProvider
	classifier *classify.Classifier
}

func buildComponents(c *config.Config, ext ocr.Extractor) (*components, error) {
	norm := normalize.New(normalize.Options{
		BusinessTerms: c.Normalization.BusinessTerms,
		Suffixes:      c.Normalization.Suffixes,
	})

	algorithms, err := c.Fuzzy.ParsedAlgorithms()
	if err != nil {
		return nil, err
	}
	engine, err := match.NewEngine(match.Options{
		Threshold:  c.Fuzzy.Threshold,
		MaxResults: c.Fuzzy.MaxResults,
		Algorithms: algorithms,
	})
	if err != nil {
		return nil, err
	}

	admin, err := classify.NewAdminDetector(c.Classification.AdministrativePatterns)
	if err != nil {
		return nil, err
	}

	proc := document.NewRetrying(
		document.NewLimited(document.NewTextProcessor(ext), c.Documents.RatePerSec, c.Documents.Burst),
		resilience.FromSettings(c.Documents.RetryAttempts, c.Documents.RetryBackoffMs),
	)
	classifier, err := classify.New(classify.Options{
		Normalizer:    norm,
		Engine:        engine,
		Processor:     proc,
		Admin:         admin,
		NearMissFloor: c.Fuzzy.NearMissFloor,
		NearMissLimit: c.Fuzzy.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	return &components{
		normalizer: norm,
		engine:     engine,
		provider: &listing.FSProvider{
			FolderName:         c.Documents.COIFolderName,
			AlternativeFolders: c.Documents.AlternativeFolderNames,
			Extensions:         c.Documents.Extensions,
			Normalizer:         norm,
		},
		classifier: classifier,
	}, nil
}

// initStore opens the configured run store. It returns nil when
// persistence is disabled.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
