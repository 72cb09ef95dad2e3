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

// DefaultForumBoards are the PTT boards searched when none are picked.
var DefaultForumBoards = []string{"Gossiping", "Stock", "Tech_Job"}

// socialSource is the adapter surface the social coordinator fans out
// over. Kind partitions the results into social and forum buckets.
type socialSource interface {
	Name() string
	Kind() core.SourceKind
	Search(ctx context.Context, query string, maxResults int) ([]core.Document, error)
}

// pttBoardSource binds the PTT adapter to one board.
type pttBoardSource struct {
	adapter *scrape.PTTAdapter
	board   string
}

func (s pttBoardSource) Name() string          { return "ptt:" + s.board }
func (s pttBoardSource) Kind() core.SourceKind { return core.SourceForum }

func (s pttBoardSource) Search(ctx context.Context, query string, maxResults int) ([]core.Document, error) {
	return s.adapter.Search(ctx, query, []string{s.board}, maxResults)
}

// SocialResult extends Result with the forum/social partition.
type SocialResult struct {
	Social      []core.Document
	Forum       []core.Document
	SourcesUsed []string
	Errors      []string
}

// SocialCoordinator runs sub-queries against the social platforms the
// request enabled: Threads for social, PTT boards for forum, and
// LinkedIn for any explicitly provided post URLs.
type SocialCoordinator struct {
	social   socialSource
	forums   []socialSource
	linkedin socialSource
}

// NewSocialCoordinator builds the coordinator. Empty boards fall back
// to DefaultForumBoards; nil adapters disable their platform.
func NewSocialCoordinator(threads *scrape.ThreadsAdapter, ptt *scrape.PTTAdapter, linkedin *scrape.LinkedInAdapter, boards []string) *SocialCoordinator {
	if len(boards) == 0 {
		boards = DefaultForumBoards
	}
	c := &SocialCoordinator{}
	if threads != nil {
		c.social = threads
	}
	if ptt != nil {
		for _, board := range boards {
			c.forums = append(c.forums, pttBoardSource{adapter: ptt, board: board})
		}
	}
	if linkedin != nil {
		c.linkedin = linkedin
	}
	return c
}

// Gather fans out one task per query per platform. includeSocial turns
// Threads on, includeForum turns the PTT boards on, and linkedinURLs
// are fetched individually regardless.
func (c *SocialCoordinator) Gather(ctx context.Context, queries, linkedinURLs []string, includeSocial, includeForum bool, maxPerSource int) SocialResult {
	type task struct {
		source socialSource
		query  string
	}
	var tasks []task
	for _, q := range queries {
		if includeSocial && c.social != nil {
			tasks = append(tasks, task{source: c.social, query: q})
		}
		if includeForum {
			for _, f := range c.forums {
				tasks = append(tasks, task{source: f, query: q})
			}
		}
	}
	if c.linkedin != nil {
		for _, u := range linkedinURLs {
			tasks = append(tasks, task{source: c.linkedin, query: u})
		}
	}

	var (
		mu     sync.Mutex
		used   []string
		errs   []string
		merged = make([][]core.Document, len(tasks))
		kinds  = make([]core.SourceKind, len(tasks))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, t := range tasks {
		kinds[i] = t.source.Kind()
		g.Go(func() error {
			found, err := t.source.Search(ctx, t.query, maxPerSource)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("social source failed", "source", t.source.Name(), "query", t.query, "error", err.Error())
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

	var social, forum []core.Document
	for i, found := range merged {
		if kinds[i] == core.SourceForum {
			forum = append(forum, found...)
		} else {
			social = append(social, found...)
		}
	}
	social = dedupeByURL(social)
	forum = dedupeByURL(forum)
	sortNewestFirst(social)
	sortNewestFirst(forum)

	return SocialResult{Social: social, Forum: forum, SourcesUsed: distinct(used), Errors: errs}
}
