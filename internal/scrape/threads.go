package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
)

const (
	threadsBase     = "https://www.threads.net"
	threadsMaxDepth = 10
)

// ThreadsAdapter scrapes public Threads pages. Threads aggressively
// login-walls anonymous traffic, so every extraction path degrades to
// an empty result rather than an error.
type ThreadsAdapter struct {
	client *Client
	base   string
}

// NewThreadsAdapter builds the adapter.
func NewThreadsAdapter(client *Client) *ThreadsAdapter {
	return &ThreadsAdapter{client: client, base: threadsBase}
}

// Name identifies the adapter in logs and source listings.
func (a *ThreadsAdapter) Name() string { return "threads" }

// Kind reports the documents this adapter emits.
func (a *ThreadsAdapter) Kind() core.SourceKind { return core.SourceSocial }

// Search resolves the query to a page and extracts posts from it.
// "#tag" searches the tag, "@user" loads the profile, anything else is
// treated as a tag search.
func (a *ThreadsAdapter) Search(ctx context.Context, query string, maxResults int) ([]core.Document, error) {
	query = strings.TrimSpace(query)
	var pageURL string
	switch {
	case strings.HasPrefix(query, "@"):
		pageURL = fmt.Sprintf("%s/@%s", a.base, strings.TrimPrefix(query, "@"))
	case strings.HasPrefix(query, "#"):
		pageURL = fmt.Sprintf("%s/search?q=%s&serp_type=default", a.base, url.QueryEscape(strings.TrimPrefix(query, "#")))
	default:
		pageURL = fmt.Sprintf("%s/search?q=%s&serp_type=default", a.base, url.QueryEscape(query))
	}

	page, err := a.client.GetDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	posts := a.extractFromJSON(page)
	if len(posts) == 0 {
		posts = a.extractFromHTML(page)
	}
	if len(posts) == 0 {
		logger.Debug("threads returned no extractable posts", "url", pageURL)
	}
	if maxResults > 0 && len(posts) > maxResults {
		posts = posts[:maxResults]
	}
	return posts, nil
}

// UserPosts fetches a profile page and extracts its visible posts.
func (a *ThreadsAdapter) UserPosts(ctx context.Context, username string, maxResults int) ([]core.Document, error) {
	return a.Search(ctx, "@"+strings.TrimPrefix(username, "@"), maxResults)
}

// extractFromJSON walks the embedded JSON script blobs looking for post
// objects, identified by a text field next to a user or author field.
func (a *ThreadsAdapter) extractFromJSON(page *goquery.Document) []core.Document {
	var docs []core.Document
	seen := map[string]bool{}
	page.Find(`script[type="application/json"]`).Each(func(_ int, s *goquery.Selection) {
		var blob any
		if err := json.Unmarshal([]byte(s.Text()), &blob); err != nil {
			return
		}
		a.walkJSON(blob, 0, seen, &docs)
	})
	return docs
}

func (a *ThreadsAdapter) walkJSON(node any, depth int, seen map[string]bool, out *[]core.Document) {
	if depth > threadsMaxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if doc := a.postFromMap(v); doc != nil && !seen[doc.URL] {
			seen[doc.URL] = true
			*out = append(*out, *doc)
		}
		for _, child := range v {
			a.walkJSON(child, depth+1, seen, out)
		}
	case []any:
		for _, child := range v {
			a.walkJSON(child, depth+1, seen, out)
		}
	}
}

func (a *ThreadsAdapter) postFromMap(m map[string]any) *core.Document {
	text, _ := m["text"].(string)
	if text == "" {
		return nil
	}
	user, ok := m["user"].(map[string]any)
	if !ok {
		user, ok = m["author"].(map[string]any)
	}
	if !ok {
		return nil
	}
	username, _ := user["username"].(string)
	if username == "" {
		return nil
	}

	postID, _ := m["code"].(string)
	if postID == "" {
		postID, _ = m["pk"].(string)
	}
	postURL := fmt.Sprintf("%s/@%s", a.base, username)
	if postID != "" {
		postURL = fmt.Sprintf("%s/@%s/post/%s", a.base, username, postID)
	}

	doc := &core.Document{
		Title:      snippet(text, 100),
		URL:        postURL,
		Content:    text,
		SourceKind: core.SourceSocial,
		SourceName: "threads",
		Author:     username,
		AuthorURL:  fmt.Sprintf("%s/@%s", a.base, username),
		ScrapedAt:  time.Now().UTC(),
		Engagement: &core.Engagement{
			Likes:    intField(m, "like_count"),
			Comments: intField(m, "reply_count"),
			Shares:   intField(m, "repost_count"),
		},
	}
	if ts := intField(m, "taken_at"); ts > 0 {
		t := time.Unix(int64(ts), 0).UTC()
		doc.PublishedAt = &t
	}
	return doc
}

// extractFromHTML is the fallback for pages that render posts server
// side instead of embedding JSON.
func (a *ThreadsAdapter) extractFromHTML(page *goquery.Document) []core.Document {
	var docs []core.Document
	page.Find(`[data-pressable-container='true']`).Each(func(i int, s *goquery.Selection) {
		var parts []string
		s.Find(`[dir='auto']`).Each(func(_ int, t *goquery.Selection) {
			if txt := strings.TrimSpace(t.Text()); txt != "" {
				parts = append(parts, txt)
			}
		})
		text := strings.Join(parts, " ")
		if text == "" {
			return
		}
		docs = append(docs, core.Document{
			Title:      snippet(text, 100),
			URL:        fmt.Sprintf("%s/#post-%d", a.base, i),
			Content:    text,
			SourceKind: core.SourceSocial,
			SourceName: "threads",
			ScrapedAt:  time.Now().UTC(),
		})
	})
	return docs
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// snippet truncates text to n runes, appending an ellipsis when cut.
func snippet(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
