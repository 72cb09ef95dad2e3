package scrape

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"clipbrief/internal/core"
	"clipbrief/internal/logger"
)

const (
	pttBase      = "https://www.ptt.cc"
	pttListPages = 3
	pttBodyLimit = 2000
)

var boardNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// taipei is the timezone PTT renders article timestamps in.
var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// PTTAdapter scrapes the PTT bulletin board system (www.ptt.cc).
type PTTAdapter struct {
	client *Client
	base   string
}

// NewPTTAdapter builds the adapter.
func NewPTTAdapter(client *Client) *PTTAdapter {
	return &PTTAdapter{client: client, base: pttBase}
}

// Name identifies the adapter in logs and source listings.
func (a *PTTAdapter) Name() string { return "ptt" }

// Kind reports the documents this adapter emits.
func (a *PTTAdapter) Kind() core.SourceKind { return core.SourceForum }

// over18 satisfies the age gate PTT puts in front of some boards.
func over18() *http.Cookie {
	return &http.Cookie{Name: "over18", Value: "1"}
}

type pttEntry struct {
	title     string
	url       string
	author    string
	pushCount int
	listDate  string
}

// ListBoard fetches up to three index pages of a board and returns the
// listed articles without bodies.
func (a *PTTAdapter) ListBoard(ctx context.Context, board string) ([]pttEntry, error) {
	if !boardNameRe.MatchString(board) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoard, board)
	}

	pageURL := fmt.Sprintf("%s/bbs/%s/index.html", a.base, board)
	var entries []pttEntry
	for page := 0; page < pttListPages && pageURL != ""; page++ {
		doc, err := a.client.GetDocument(ctx, pageURL, withCookie(over18()))
		if err != nil {
			if page == 0 {
				return nil, err
			}
			// Later pages are best-effort.
			logger.Debug("ptt page fetch failed", "board", board, "page", page, "error", err.Error())
			break
		}
		entries = append(entries, a.parseListing(doc)...)
		pageURL = a.prevPageURL(doc)
	}
	return entries, nil
}

func (a *PTTAdapter) parseListing(doc *goquery.Document) []pttEntry {
	var entries []pttEntry
	doc.Find("div.r-ent").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("div.title a")
		href, ok := link.Attr("href")
		if !ok {
			// Deleted articles keep the row but lose the anchor.
			return
		}
		entries = append(entries, pttEntry{
			title:     strings.TrimSpace(link.Text()),
			url:       a.base + href,
			author:    strings.TrimSpace(s.Find("div.author").Text()),
			pushCount: parsePushCount(strings.TrimSpace(s.Find("div.nrec").Text())),
			listDate:  strings.TrimSpace(s.Find("div.date").Text()),
		})
	})
	return entries
}

// prevPageURL finds the 上頁 pager link pointing at the next older page.
func (a *PTTAdapter) prevPageURL(doc *goquery.Document) string {
	var prev string
	doc.Find("a.btn.wide").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "上頁") {
			if href, ok := s.Attr("href"); ok {
				prev = a.base + href
			}
			return false
		}
		return true
	})
	return prev
}

// parsePushCount maps the nrec marker to a score: 爆 caps at 100,
// X-prefixed markers are heavy downvotes, digits pass through.
func parsePushCount(marker string) int {
	switch {
	case marker == "":
		return 0
	case marker == "爆":
		return 100
	case strings.HasPrefix(marker, "X"):
		return -10
	default:
		n, err := strconv.Atoi(marker)
		if err != nil {
			return 0
		}
		return n
	}
}

// Search lists the given boards and keeps articles whose title or body
// contains any whitespace-separated keyword of query, case-insensitive.
// The board exposes no search API, so every listed article is fetched.
func (a *PTTAdapter) Search(ctx context.Context, query string, boards []string, maxResults int) ([]core.Document, error) {
	keywords := strings.Fields(strings.ToLower(query))
	var docs []core.Document
	for _, board := range boards {
		entries, err := a.ListBoard(ctx, board)
		if err != nil {
			return docs, err
		}
		for _, e := range entries {
			if maxResults > 0 && len(docs) >= maxResults {
				return docs, nil
			}
			doc, err := a.GetArticle(ctx, board, e.url)
			if err != nil {
				logger.Debug("ptt article fetch failed", "url", e.url, "error", err.Error())
				continue
			}
			if doc == nil {
				continue
			}
			if !matchesAny(strings.ToLower(doc.Title+"\n"+doc.Content), keywords) {
				continue
			}
			if doc.Engagement == nil {
				doc.Engagement = &core.Engagement{Likes: e.pushCount}
			}
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// HotArticles lists a board and returns articles with at least minPushes
// push marks, most pushed first.
func (a *PTTAdapter) HotArticles(ctx context.Context, board string, minPushes, maxResults int) ([]core.Document, error) {
	entries, err := a.ListBoard(ctx, board)
	if err != nil {
		return nil, err
	}
	var hot []pttEntry
	for _, e := range entries {
		if e.pushCount >= minPushes {
			hot = append(hot, e)
		}
	}
	sort.SliceStable(hot, func(i, j int) bool { return hot[i].pushCount > hot[j].pushCount })

	var docs []core.Document
	for _, e := range hot {
		if maxResults > 0 && len(docs) >= maxResults {
			break
		}
		doc, err := a.GetArticle(ctx, board, e.url)
		if err != nil || doc == nil {
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func matchesAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return len(keywords) == 0
}

// GetArticle fetches one article page and extracts metadata, body and
// push counts. Returns nil without error when the page carries no
// article content.
func (a *PTTAdapter) GetArticle(ctx context.Context, board, articleURL string) (*core.Document, error) {
	page, err := a.client.GetDocument(ctx, articleURL, withCookie(over18()))
	if err != nil {
		return nil, err
	}

	meta := map[string]string{}
	page.Find("div.article-metaline").Each(func(_ int, s *goquery.Selection) {
		tag := strings.TrimSpace(s.Find("span.article-meta-tag").Text())
		val := strings.TrimSpace(s.Find("span.article-meta-value").Text())
		meta[tag] = val
	})

	main := page.Find("div#main-content")
	if main.Length() == 0 {
		return nil, nil
	}
	content := extractPTTBody(main.Text())

	pushes, boos := 0, 0
	page.Find("div.push span.push-tag").Each(func(_ int, s *goquery.Selection) {
		switch strings.TrimSpace(s.Text()) {
		case "推":
			pushes++
		case "噓":
			boos++
		}
	})
	total := page.Find("div.push").Length()

	title := meta["標題"]
	if title == "" {
		title = strings.TrimSpace(page.Find("title").Text())
	}
	if title == "" && content == "" {
		return nil, nil
	}

	doc := &core.Document{
		Title:      title,
		URL:        articleURL,
		Content:    content,
		SourceKind: core.SourceForum,
		SourceName: "ptt:" + board,
		SourceURL:  fmt.Sprintf("%s/bbs/%s/index.html", a.base, board),
		Author:     meta["作者"],
		ScrapedAt:  time.Now().UTC(),
		Language:   "zh-TW",
		Region:     "TW",
	}
	if total > 0 {
		doc.Engagement = &core.Engagement{Likes: pushes - boos, Comments: total}
	}
	if ts, err := time.ParseInLocation("Mon Jan  2 15:04:05 2006", meta["時間"], taipei); err == nil {
		utc := ts.UTC()
		doc.PublishedAt = &utc
	}
	return doc, nil
}

// extractPTTBody trims the metadata header and cuts the body at the
// first signature or push line, then caps the length.
func extractPTTBody(raw string) string {
	lines := strings.Split(raw, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "※") ||
			strings.HasPrefix(trimmed, "→") ||
			strings.HasPrefix(trimmed, "推") ||
			strings.HasPrefix(trimmed, "噓") {
			break
		}
		kept = append(kept, line)
	}
	body := strings.TrimSpace(strings.Join(kept, "\n"))
	if r := []rune(body); len(r) > pttBodyLimit {
		body = string(r[:pttBodyLimit])
	}
	return body
}
