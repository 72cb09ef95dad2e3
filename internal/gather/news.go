package gather

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
	"clipbrief/internal/scrape"
)

// maxConcurrentFetches bounds the fan-out so a deep request does not
// hammer upstreams all at once.
const maxConcurrentFetches = 5

// newsSource is the adapter surface the news coordinator fans out over.
type newsSource interface {
	Name() string
	Search(ctx context.Context, query, language, region string, maxResults int) ([]core.Document, error)
}

// newsAPISource adapts the NewsAPI adapter, which has no region
// parameter, to the coordinator's source surface.
type newsAPISource struct {
	adapter *scrape.NewsAPIAdapter
}

func (s newsAPISource) Name() string { return s.adapter.Name() }

func (s newsAPISource) Search(ctx context.Context, query, language, _ string, maxResults int) ([]core.Document, error) {
	return s.adapter.Search(ctx, query, language, maxResults)
}

// NewsCoordinator runs every sub-query against every available news
// source. Google News is always available; NewsAPI joins when a key was
// configured.
type NewsCoordinator struct {
	sources []newsSource
}

// NewNewsCoordinator builds the coordinator. newsapi may be nil.
func NewNewsCoordinator(googlenews *scrape.GoogleNewsAdapter, newsapi *scrape.NewsAPIAdapter) *NewsCoordinator {
	sources := []newsSource{googlenews}
	if newsapi != nil {
		sources = append(sources, newsAPISource{adapter: newsapi})
	}
	return &NewsCoordinator{sources: sources}
}

// Gather fans queries out over all sources concurrently and merges the
// results. Per-task failures become entries in Result.Errors.
func (c *NewsCoordinator) Gather(ctx context.Context, queries []string, language, region string, maxPerSource int) Result {
	type task struct {
		source newsSource
		query  string
	}
	var tasks []task
	for _, q := range queries {
		for _, s := range c.sources {
			tasks = append(tasks, task{source: s, query: q})
		}
	}

	var (
		mu     sync.Mutex
		docs   []core.Document
		used   []string
		errs   []string
		merged = make([][]core.Document, len(tasks))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, t := range tasks {
		g.Go(func() error {
			found, err := t.source.Search(ctx, t.query, language, region, maxPerSource)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("news source failed", "source", t.source.Name(), "query", t.query, "error", err.Error())
				errs = append(errs, fmt.Sprintf("%s(%s): %v", t.source.Name(), t.query, err))
				return nil
			}
			merged[i] = found
			if len(found) > 0 {
				used = append(used, t.source.Name())
			}
			return nil
		})
	}
	_ = g.Wait()

	// Merge in submission order so dedup keeps a stable winner.
	for _, found := range merged {
		docs = append(docs, found...)
	}
	docs = dedupeByURL(docs)
	sortNewestFirst(docs)

	return Result{Documents: docs, SourcesUsed: distinct(used), Errors: errs}
}
