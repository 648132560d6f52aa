package symbols

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"stockbars/internal/retry"
)

// Market identifies one listing board on the market-cap pages.
type Market struct {
	Name     string // e.g. "KOSPI"
	Param    int    // query parameter selecting the board
	Suffix   string // exchange suffix for the meta file, e.g. ".KS"
	MaxPages int
}

// PageCrawler walks the paginated market-cap HTML pages and extracts the
// 6-digit listing codes by regexp. Codes are kept in first-seen order; the
// crawl stops after EmptyTolerance consecutive pages contribute nothing
// new, which is how the unpaginated total is discovered.
type PageCrawler struct {
	BaseURL        string // printf format with market param and page, e.g. ".../list?board=%d&page=%d"
	EmptyTolerance int
	PageDelay      time.Duration
	Retry          retry.Policy

	httpClient *http.Client
	logger     *zap.Logger
}

var listingCode = regexp.MustCompile(`code=(\d{6})`)

// NewPageCrawler creates a crawler with the production defaults.
func NewPageCrawler(baseURL string, logger *zap.Logger) *PageCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageCrawler{
		BaseURL:        baseURL,
		EmptyTolerance: 5,
		PageDelay:      150 * time.Millisecond,
		Retry: retry.Policy{
			Attempts: 6,
			Base:     400 * time.Millisecond,
			Step:     400 * time.Millisecond,
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Crawl collects the listing codes of one market in page order.
func (c *PageCrawler) Crawl(ctx context.Context, m Market) ([]string, error) {
	var ordered []string
	seen := make(map[string]struct{})
	empty := 0

	for page := 1; page <= m.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		html, err := c.fetchPage(ctx, m.Param, page)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", m.Name, page, err)
		}

		fresh := 0
		for _, match := range listingCode.FindAllStringSubmatch(html, -1) {
			code := match[1]
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			ordered = append(ordered, code)
			fresh++
		}

		if fresh == 0 {
			empty++
			if empty >= c.EmptyTolerance {
				break
			}
		} else {
			empty = 0
		}
		if page == m.MaxPages {
			break
		}

		select {
		case <-time.After(c.PageDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.logger.Info("market crawl finished",
		zap.String("market", m.Name),
		zap.Int("codes", len(ordered)),
	)
	return ordered, nil
}

func (c *PageCrawler) fetchPage(ctx context.Context, market, page int) (string, error) {
	var html string
	err := c.Retry.Do(ctx, func(attempt int) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf(c.BaseURL, market, page), nil)
		if err != nil {
			return true, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, err
		}
		if resp.StatusCode != http.StatusOK {
			// 429/5xx pages come back on the next attempt.
			return false, fmt.Errorf("status %d", resp.StatusCode)
		}

		html = string(body)
		return true, nil
	})
	return html, err
}

// WriteMeta writes one market's meta CSV: header plus one row per code with
// its exchange-suffixed symbol.
func WriteMeta(path string, m Market, codes []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create meta directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"code", "market", "symbol"}); err != nil {
		return err
	}
	for _, code := range codes {
		if err := w.Write([]string{code, m.Name, code + m.Suffix}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
