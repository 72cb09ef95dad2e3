package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
)

const newsAPIBase = "https://newsapi.org/v2"

// NewsAPIAdapter queries the NewsAPI.org REST API.
type NewsAPIAdapter struct {
	client *Client
	apiKey string
	base   string
}

// NewNewsAPIAdapter builds the adapter. A missing key is a configuration
// error surfaced at construction, not at query time.
func NewNewsAPIAdapter(client *Client, apiKey string) (*NewsAPIAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: NewsAPI key is empty", ErrConfig)
	}
	return &NewsAPIAdapter{client: client, apiKey: apiKey, base: newsAPIBase}, nil
}

// Name identifies the adapter in logs and source listings.
func (a *NewsAPIAdapter) Name() string { return "newsapi" }

// Kind reports the documents this adapter emits.
func (a *NewsAPIAdapter) Kind() core.SourceKind { return core.SourceNews }

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// Search queries the /everything endpoint sorted by publication time.
func (a *NewsAPIAdapter) Search(ctx context.Context, query, language string, maxResults int) ([]core.Document, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("language", apiLanguage(language))
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(pageSize(maxResults)))
	return a.fetch(ctx, a.base+"/everything?"+params.Encode(), language)
}

// TopHeadlines queries the /top-headlines endpoint for a country and
// optional category.
func (a *NewsAPIAdapter) TopHeadlines(ctx context.Context, country, category string, maxResults int) ([]core.Document, error) {
	params := url.Values{}
	params.Set("country", country)
	if category != "" {
		params.Set("category", category)
	}
	params.Set("pageSize", strconv.Itoa(pageSize(maxResults)))
	return a.fetch(ctx, a.base+"/top-headlines?"+params.Encode(), "")
}

func (a *NewsAPIAdapter) fetch(ctx context.Context, endpoint, language string) ([]core.Document, error) {
	body, err := a.client.Get(ctx, endpoint, withHeader("X-Api-Key", a.apiKey))
	if err != nil {
		return nil, err
	}

	var resp newsAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding NewsAPI response: %v", ErrTransport, err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("%w: NewsAPI error %s: %s", ErrTransport, resp.Code, resp.Message)
	}

	docs := make([]core.Document, 0, len(resp.Articles))
	for _, art := range resp.Articles {
		// Articles withdrawn by the publisher come back with this
		// placeholder title.
		if art.Title == "[Removed]" {
			continue
		}
		doc := core.Document{
			Title:      art.Title,
			URL:        art.URL,
			Content:    art.Content,
			Summary:    art.Description,
			SourceKind: core.SourceNews,
			SourceName: "NewsAPI:" + art.Source.Name,
			Author:     art.Author,
			ScrapedAt:  time.Now().UTC(),
			ImageURL:   art.URLToImage,
			Language:   language,
		}
		if ts, err := parseISO8601(art.PublishedAt); err == nil {
			doc.PublishedAt = &ts
		} else if art.PublishedAt != "" {
			logger.Debug("unparseable NewsAPI timestamp", "value", art.PublishedAt)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func pageSize(maxResults int) int {
	if maxResults < 1 || maxResults > 100 {
		return 100
	}
	return maxResults
}

// apiLanguage maps BCP-47 tags to NewsAPI's two-letter codes, so
// "zh-TW" becomes "zh".
func apiLanguage(language string) string {
	if i := strings.IndexAny(language, "-_"); i > 0 {
		return strings.ToLower(language[:i])
	}
	if language == "" {
		return "en"
	}
	return strings.ToLower(language)
}

func parseISO8601(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse("2006-01-02T15:04:05-07:00", value)
}
