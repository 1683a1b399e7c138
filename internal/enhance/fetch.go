package enhance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/refcheck"
)

// MaxSourceBytes caps one source image payload at 15 MiB. The cap is
// enforced against the declared Content-Length and, defensively, against
// the bytes actually received.
const MaxSourceBytes = 15 << 20

// Source is one fetched input image.
type Source struct {
	Name string
	MIME string
	Data []byte
}

// Fetcher downloads source references over the network with the SSRF check
// re-applied immediately before each fetch.
type Fetcher struct {
	httpClient *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{httpClient: client}
}

// Fetch re-validates ref, downloads it, and verifies content type and size.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Source, error) {
	if err := refcheck.Check(ref); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create fetch request: %v", domain.ErrValidation, err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %q: %v", domain.ErrValidation, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %q: status %d", domain.ErrValidation, ref, resp.StatusCode)
	}

	mimeType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %q is not an image (content type %q)", domain.ErrValidation, ref, mimeType)
	}

	if resp.ContentLength > MaxSourceBytes {
		return nil, fmt.Errorf("%w: %q declares %d bytes, limit is %d", domain.ErrValidation, ref, resp.ContentLength, MaxSourceBytes)
	}

	// Read one byte past the limit to catch under-reporting headers.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", domain.ErrValidation, ref, err)
	}
	if len(data) > MaxSourceBytes {
		return nil, fmt.Errorf("%w: %q exceeds the %d byte limit", domain.ErrValidation, ref, MaxSourceBytes)
	}

	return &Source{Name: sourceName(ref), MIME: mimeType, Data: data}, nil
}

// sourceName derives a safe file stem from the reference path.
func sourceName(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return "image"
	}
	base := path.Base(u.Path)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
