package recon

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	homepageMaxBody        = 100 * 1024 // 100KB
	defaultHomepageTimeout = 15 * time.Second
	maxRedirects           = 5
)

// homepage is the captured response used for fingerprinting.
type homepage struct {
	url       string
	status    int
	headers   http.Header
	body      string
	truncated bool
	title     string
	generator string
}

func newHomepageClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			// Certificate validity is reported by the TLS block; fingerprinting still
			// reads sites whose certificates fail verification.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

func homepageURL(domain, port string) string {
	if port == "" || port == "443" {
		return "https://" + domain + "/"
	}
	return "https://" + net.JoinHostPort(domain, port) + "/"
}

// fetchHomepage GETs url and keeps at most homepageMaxBody bytes of the body.
func fetchHomepage(ctx context.Context, client *http.Client, url, userAgent string) (*homepage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, homepageMaxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	page := &homepage{
		url:     resp.Request.URL.String(),
		status:  resp.StatusCode,
		headers: resp.Header,
	}
	if len(body) > homepageMaxBody {
		body = body[:homepageMaxBody]
		page.truncated = true
	}
	page.body = string(body)
	page.title, page.generator = parseMarkup(page.body)
	return page, nil
}

// parseMarkup extracts the page title and the generator meta tag.
func parseMarkup(body string) (title, generator string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "generator") {
			return true
		}
		generator, _ = s.Attr("content")
		generator = strings.TrimSpace(generator)
		return false
	})
	return title, generator
}
