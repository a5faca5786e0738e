// Package imageproxy turns externally hosted member photos into something a
// page can display: Drive thumbnail links, or inline data URLs.
package imageproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	fetchTimeout = 10 * time.Second
	maxImageSize = 5 << 20
	maxRedirects = 10
)

var (
	ErrHostNotAllowed = errors.New("image host not allowed")
	ErrTooLarge       = errors.New("image too large")
)

var drivePathID = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)

// DriveFileID extracts the file id from a Google Drive share link.
func DriveFileID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), "drive.google.com") {
		return "", false
	}
	if m := drivePathID.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	if id := u.Query().Get("id"); id != "" {
		return id, true
	}
	return "", false
}

// DriveThumbnailURL rewrites Drive share links to the embeddable thumbnail
// endpoint. Other URLs are returned unchanged.
func DriveThumbnailURL(raw string) string {
	id, ok := DriveFileID(raw)
	if !ok {
		return raw
	}
	return "https://drive.google.com/thumbnail?id=" + url.QueryEscape(id) + "&sz=w400"
}

// DownloadURL rewrites Drive share links to the direct download form.
func DownloadURL(raw string) string {
	id, ok := DriveFileID(raw)
	if !ok {
		return raw
	}
	return "https://drive.google.com/uc?export=view&id=" + url.QueryEscape(id)
}

func googleHost(host string) bool {
	return host == "google.com" || strings.HasSuffix(host, ".google.com")
}

// Fetcher downloads images from allowed hosts.
type Fetcher struct {
	client *http.Client
	allow  func(host string) bool
}

// NewFetcher returns a Fetcher restricted to google.com hosts. The
// restriction applies to every redirect hop as well as the first request.
func NewFetcher() *Fetcher {
	f := &Fetcher{allow: googleHost}
	f.client = &http.Client{
		Timeout:       fetchTimeout,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if !f.allow(req.URL.Hostname()) {
		return fmt.Errorf("redirect to %s: %w", req.URL.Hostname(), ErrHostNotAllowed)
	}
	return nil
}

// FetchAsDataURL downloads raw and returns it as a base64 data URL. Only
// google.com hosts are fetched. Failures are returned once; there are no
// retries.
func (f *Fetcher) FetchAsDataURL(ctx context.Context, raw string) (string, error) {
	target := DownloadURL(raw)
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	if !f.allow(u.Hostname()) {
		return "", fmt.Errorf("fetch %s: %w", u.Hostname(), ErrHostNotAllowed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create image request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(body) > maxImageSize {
		return "", ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}
