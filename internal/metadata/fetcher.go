// Package metadata fetches the caption and thumbnail of an Instagram reel.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Metadata is what the pipeline needs from the source page.
type Metadata struct {
	ReelURL      string
	ThumbnailURL string
	Caption      string
}

// Config configures a Fetcher. When AppID and AppSecret are set the
// caption is read through the oEmbed endpoint, otherwise from the public
// page's description meta tags.
type Config struct {
	OEmbedURL string
	AppID     string
	AppSecret string
	Timeout   time.Duration
	UserAgent string
}

// Fetcher reads reel metadata over HTTP.
type Fetcher struct {
	http *http.Client
	cfg  Config
}

// NewFetcher returns a Fetcher. A nil httpClient uses http.DefaultClient.
func NewFetcher(cfg Config, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reelsplace/1.0"
	}
	return &Fetcher{http: httpClient, cfg: cfg}
}

// NormalizeURL drops the query string and a trailing slash.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "/")
}

// ThumbnailURL derives the large preview image URL of a normalized reel
// URL. Instagram serves it under the /p/ path for every media type.
func ThumbnailURL(normalized string) string {
	return strings.Replace(normalized, "/reel/", "/p/", 1) + "/media/?size=l"
}

// IsReelURL reports whether raw looks like an Instagram reel link.
func IsReelURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.Contains(u.Host+u.Path, "instagram.com/reel/")
}

// Fetch returns the thumbnail and caption of reelURL. A page without a
// caption yields an empty Caption and no error; transport and HTTP
// failures are returned.
func (f *Fetcher) Fetch(ctx context.Context, reelURL string) (Metadata, error) {
	normalized := NormalizeURL(reelURL)
	md := Metadata{ReelURL: normalized, ThumbnailURL: ThumbnailURL(normalized)}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var (
		caption string
		err     error
	)
	if f.cfg.AppID != "" && f.cfg.AppSecret != "" {
		caption, err = f.captionFromOEmbed(ctx, normalized)
	} else {
		caption, err = f.captionFromPage(ctx, normalized)
	}
	if err != nil {
		return Metadata{}, err
	}
	md.Caption = strings.TrimSpace(caption)
	return md, nil
}

type oembedResponse struct {
	HTML  string `json:"html"`
	Title string `json:"title"`
}

func (f *Fetcher) captionFromOEmbed(ctx context.Context, normalized string) (string, error) {
	q := url.Values{}
	q.Set("url", normalized)
	q.Set("access_token", f.cfg.AppID+"|"+f.cfg.AppSecret)
	resp, err := f.get(ctx, f.cfg.OEmbedURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode oembed: %w", err)
	}
	if body.HTML == "" {
		return body.Title, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body.HTML))
	if err != nil {
		return "", fmt.Errorf("parse oembed html: %w", err)
	}
	if text := strings.TrimSpace(doc.Find("blockquote").Text()); text != "" {
		return text, nil
	}
	return body.Title, nil
}

func (f *Fetcher) captionFromPage(ctx context.Context, normalized string) (string, error) {
	resp, err := f.get(ctx, normalized+"/")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	for _, sel := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
			return captionFromDescription(content), nil
		}
	}
	return "", nil
}

// captionFromDescription strips the "N likes, M comments - user on date:"
// preamble Instagram puts in front of the quoted caption.
func captionFromDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	i := strings.Index(desc, ": \"")
	if i < 0 {
		i = strings.Index(desc, ": “")
	}
	if i < 0 {
		return desc
	}
	body := strings.TrimSpace(desc[i+2:])
	body = strings.TrimPrefix(body, "\"")
	body = strings.TrimPrefix(body, "“")
	body = strings.TrimSuffix(body, ".")
	body = strings.TrimSuffix(body, "\"")
	body = strings.TrimSuffix(body, "”")
	return body
}

var errEmptyURL = errors.New("empty url")

func (f *Fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	if target == "" {
		return nil, errEmptyURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", redact(target), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", redact(target), resp.Status)
	}
	return resp, nil
}

// redact drops the query string so credentials never reach the logs.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
