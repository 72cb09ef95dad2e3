package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
)

// LinkedInAdapter extracts public LinkedIn posts and articles. LinkedIn
// has no anonymous search, so Search only acts on direct post URLs.
type LinkedInAdapter struct {
	client *Client
}

// NewLinkedInAdapter builds the adapter.
func NewLinkedInAdapter(client *Client) *LinkedInAdapter {
	return &LinkedInAdapter{client: client}
}

// Name identifies the adapter in logs and source listings.
func (a *LinkedInAdapter) Name() string { return "linkedin" }

// Kind reports the documents this adapter emits.
func (a *LinkedInAdapter) Kind() core.SourceKind { return core.SourceSocial }

// Search returns the post behind query when query is a linkedin.com
// URL, and an empty slice otherwise.
func (a *LinkedInAdapter) Search(ctx context.Context, query string, _ int) ([]core.Document, error) {
	query = strings.TrimSpace(query)
	if !strings.Contains(query, "linkedin.com") || !strings.HasPrefix(query, "http") {
		return nil, nil
	}
	doc, err := a.GetPost(ctx, query)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return []core.Document{*doc}, nil
}

// GetPost fetches one public post or article. Returns nil without error
// when nothing extractable is on the page, which usually means a login
// wall.
func (a *LinkedInAdapter) GetPost(ctx context.Context, postURL string) (*core.Document, error) {
	page, err := a.client.GetDocument(ctx, postURL)
	if err != nil {
		return nil, err
	}

	title := firstText(page,
		"h1.article-title",
		"article h1",
		"h1",
	)
	content := firstText(page,
		"div.article-content",
		"div.feed-shared-update-v2__description",
		"div.attributed-text-segment-list__container",
	)
	author := firstText(page,
		"span.feed-shared-actor__name",
		"a.article-author-name",
		"span.author-name",
	)

	// Public pages served to crawlers still expose OpenGraph tags even
	// when the body is walled off.
	if title == "" {
		title = metaContent(page, "og:title")
	}
	if content == "" {
		content = metaContent(page, "og:description")
	}
	image := metaContent(page, "og:image")

	if title == "" && content == "" {
		logger.Debug("linkedin page had no extractable content", "url", postURL)
		return nil, nil
	}

	return &core.Document{
		Title:      title,
		URL:        postURL,
		Content:    content,
		SourceKind: core.SourceSocial,
		SourceName: "linkedin",
		Author:     author,
		ScrapedAt:  time.Now().UTC(),
		ImageURL:   image,
	}, nil
}

// GetCompanyPage fetches a company page, returning the summary card and
// any visible posts.
func (a *LinkedInAdapter) GetCompanyPage(ctx context.Context, companyURL string, maxPosts int) ([]core.Document, error) {
	page, err := a.client.GetDocument(ctx, companyURL)
	if err != nil {
		return nil, err
	}

	var docs []core.Document
	name := firstText(page, "h1.org-top-card-summary__title", "h1")
	tagline := firstText(page, "p.org-top-card-summary__tagline", "h4.top-card-layout__second-subline")
	if name != "" {
		docs = append(docs, core.Document{
			Title:      name,
			URL:        companyURL,
			Content:    tagline,
			SourceKind: core.SourceSocial,
			SourceName: "linkedin",
			ScrapedAt:  time.Now().UTC(),
		})
	}

	page.Find("div.feed-shared-update-v2__description").Each(func(i int, s *goquery.Selection) {
		if maxPosts > 0 && len(docs) > maxPosts {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		docs = append(docs, core.Document{
			Title:      snippet(text, 100),
			URL:        fmt.Sprintf("%s#post-%d", companyURL, i),
			Content:    text,
			SourceKind: core.SourceSocial,
			SourceName: "linkedin",
			Author:     name,
			ScrapedAt:  time.Now().UTC(),
		})
	})
	return docs, nil
}

func firstText(page *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if txt := strings.TrimSpace(page.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}

func metaContent(page *goquery.Document, property string) string {
	val, _ := page.Find(`meta[property="` + property + `"]`).Attr("content")
	return strings.TrimSpace(val)
}
