package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
	"github.com/mohamedkhairy/news-pipeline/internal/dedup"
	"github.com/mohamedkhairy/news-pipeline/internal/markethours"
	"github.com/mohamedkhairy/news-pipeline/internal/models"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

const (
	sourceNaver    = "NAVER"
	newsIndexPath  = "/item/news_news.naver"
	dateTimeLayout = "2006.01.02 15:04"
)

// NaverFetcher crawls the Naver Finance per-ticker news index. The index is
// served as EUC-KR; responses are transformed to UTF-8 before parsing.
type NaverFetcher struct {
	cfg     config.CrawlerConfig
	client  *http.Client
	limiter *rate.Limiter

	// Headlines already yielded by this process. Suppresses the same
	// story appearing on multiple pages or under multiple tickers
	// before it ever reaches the shared dedup window.
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewNaverFetcher creates a fetcher with the configured politeness delay
// enforced as a rate limit across all tickers.
func NewNaverFetcher(cfg config.CrawlerConfig) *NaverFetcher {
	interval := cfg.RequestDelay
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &NaverFetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		seen:    make(map[string]struct{}),
	}
}

// Crawl fetches up to maxPages of the ticker's news index. A failed page
// fetch ends that ticker's paging; articles from earlier pages are still
// returned.
func (f *NaverFetcher) Crawl(ctx context.Context, stockCode, stockName string, maxPages int) ([]models.Article, error) {
	var articles []models.Article

	for page := 1; page <= maxPages; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return articles, err
		}

		doc, err := f.fetchPage(ctx, stockCode, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			logger.Warn("News index page fetch failed",
				logger.ErrorField(err),
				logger.String("stock_code", stockCode),
				logger.Int("page", page),
			)
			break
		}

		rows := doc.Find("table.type5 tbody tr")
		if rows.Length() == 0 {
			break
		}

		rows.Each(func(_ int, row *goquery.Selection) {
			if a, ok := f.parseRow(row, stockCode, stockName); ok {
				articles = append(articles, a)
			}
		})
	}

	return articles, nil
}

func (f *NaverFetcher) fetchPage(ctx context.Context, stockCode string, page int) (*goquery.Document, error) {
	u := fmt.Sprintf("%s%s?code=%s&page=%d", f.cfg.BaseURL, newsIndexPath, url.QueryEscape(stockCode), page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", stockCode, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s page %d: status %d", stockCode, page, resp.StatusCode)
	}

	// The index is EUC-KR regardless of what the Content-Type claims.
	utf8Body := transform.NewReader(resp.Body, korean.EUCKR.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s page %d: %w", stockCode, page, err)
	}
	return doc, nil
}

func (f *NaverFetcher) parseRow(row *goquery.Selection, stockCode, stockName string) (models.Article, bool) {
	link := row.Find("td.title a").First()
	if link.Length() == 0 {
		return models.Article{}, false
	}

	headline := strings.TrimSpace(link.Text())
	if headline == "" {
		return models.Article{}, false
	}
	if !f.firstSighting(headline) {
		return models.Article{}, false
	}

	href, _ := link.Attr("href")
	articleURL := href
	if strings.HasPrefix(href, "/") {
		articleURL = f.cfg.BaseURL + href
	}

	press := strings.TrimSpace(row.Find("td.info").First().Text())

	// Index timestamps are KST wall-clock time.
	publishedAt := time.Now().UTC()
	if dateStr := strings.TrimSpace(row.Find("td.date").First().Text()); dateStr != "" {
		if ts, err := time.ParseInLocation(dateTimeLayout, dateStr, markethours.KST); err == nil {
			publishedAt = ts.UTC()
		}
	}

	return models.Article{
		StockCode:   stockCode,
		StockName:   stockName,
		Headline:    headline,
		Press:       press,
		ArticleURL:  articleURL,
		PublishedAt: publishedAt,
		Source:      sourceNaver,
	}, true
}

func (f *NaverFetcher) firstSighting(headline string) bool {
	fp := dedup.Fingerprint(headline)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[fp]; dup {
		return false
	}
	f.seen[fp] = struct{}{}
	return true
}
