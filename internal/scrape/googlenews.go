package scrape

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
)

const googleNewsBase = "https://news.google.com/rss"

// googleNewsTopics maps friendly topic names to Google News topic IDs.
var googleNewsTopics = map[string]string{
	"world":         "CAAqJggKIiBDQkFTRWdvSUwyMHZNRGx1YlY4U0FtVnVHZ0pWVXlnQVAB",
	"business":      "CAAqJggKIiBDQkFTRWdvSUwyMHZNRGx6TVdZU0FtVnVHZ0pWVXlnQVAB",
	"technology":    "CAAqJggKIiBDQkFTRWdvSUwyMHZNRGRqTVhZU0FtVnVHZ0pWVXlnQVAB",
	"entertainment": "CAAqJggKIiBDQkFTRWdvSUwyMHZNREpxYW5RU0FtVnVHZ0pWVXlnQVAB",
	"sports":        "CAAqJggKIiBDQkFTRWdvSUwyMHZNRFp1ZEdvU0FtVnVHZ0pWVXlnQVAB",
	"science":       "CAAqJggKIiBDQkFTRWdvSUwyMHZNRFp0Y1RjU0FtVnVHZ0pWVXlnQVAB",
	"health":        "CAAqIQgKIhtDQkFTRGdvSUwyMHZNR3QwTlRFU0FtVnVLQUFQAQ",
}

// GoogleNewsAdapter reads the public Google News RSS feeds. No API key
// is required, so the news coordinator always includes it.
type GoogleNewsAdapter struct {
	client *Client
	base   string
}

// NewGoogleNewsAdapter builds the adapter.
func NewGoogleNewsAdapter(client *Client) *GoogleNewsAdapter {
	return &GoogleNewsAdapter{client: client, base: googleNewsBase}
}

// Name identifies the adapter in logs and source listings.
func (a *GoogleNewsAdapter) Name() string { return "googlenews" }

// Kind reports the documents this adapter emits.
func (a *GoogleNewsAdapter) Kind() core.SourceKind { return core.SourceNews }

type gnFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string   `xml:"title"`
		Items []gnItem `xml:"item"`
	} `xml:"channel"`
}

type gnItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Source      struct {
		URL   string `xml:"url,attr"`
		Title string `xml:",chardata"`
	} `xml:"source"`
}

// Search fetches the RSS search feed for query in the given language
// and region, returning at most maxResults documents.
func (a *GoogleNewsAdapter) Search(ctx context.Context, query, language, region string, maxResults int) ([]core.Document, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&%s", a.base, url.QueryEscape(query), localeParams(language, region))
	return a.fetchFeed(ctx, endpoint, language, region, maxResults)
}

// TopStories fetches the front-page feed.
func (a *GoogleNewsAdapter) TopStories(ctx context.Context, language, region string, maxResults int) ([]core.Document, error) {
	endpoint := fmt.Sprintf("%s?%s", a.base, localeParams(language, region))
	return a.fetchFeed(ctx, endpoint, language, region, maxResults)
}

// TopicFeed fetches a named topic feed such as "technology" or "business".
func (a *GoogleNewsAdapter) TopicFeed(ctx context.Context, topic, language, region string, maxResults int) ([]core.Document, error) {
	id, ok := googleNewsTopics[strings.ToLower(topic)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown Google News topic %q", ErrConfig, topic)
	}
	endpoint := fmt.Sprintf("%s/topics/%s?%s", a.base, id, localeParams(language, region))
	return a.fetchFeed(ctx, endpoint, language, region, maxResults)
}

// localeParams builds the hl/gl/ceid triple Google News requires, e.g.
// hl=zh-TW&gl=TW&ceid=TW:zh for language "zh-TW".
func localeParams(language, region string) string {
	if language == "" {
		language = "zh-TW"
	}
	if region == "" {
		if i := strings.Index(language, "-"); i > 0 {
			region = strings.ToUpper(language[i+1:])
		} else {
			region = "US"
		}
	}
	base := language
	if i := strings.Index(language, "-"); i > 0 {
		base = language[:i]
	}
	v := url.Values{}
	v.Set("hl", language)
	v.Set("gl", region)
	v.Set("ceid", region+":"+base)
	return v.Encode()
}

func (a *GoogleNewsAdapter) fetchFeed(ctx context.Context, endpoint, language, region string, maxResults int) ([]core.Document, error) {
	body, err := a.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var feed gnFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: decoding Google News RSS: %v", ErrTransport, err)
	}

	docs := make([]core.Document, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if maxResults > 0 && len(docs) >= maxResults {
			break
		}
		sourceName := item.Source.Title
		if sourceName == "" {
			sourceName = "Unknown"
		}
		doc := core.Document{
			Title:      item.Title,
			URL:        item.Link,
			Summary:    item.Description,
			SourceKind: core.SourceNews,
			SourceName: "GoogleNews:" + sourceName,
			SourceURL:  item.Source.URL,
			ScrapedAt:  time.Now().UTC(),
			Language:   language,
			Region:     region,
		}
		if ts, err := parseRSSDate(item.PubDate); err == nil {
			doc.PublishedAt = &ts
		} else if item.PubDate != "" {
			logger.Debug("unparseable RSS pubDate", "value", item.PubDate)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func parseRSSDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized RSS date %q", value)
}
