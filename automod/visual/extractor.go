// Image text extraction and captioning backends.
//
// Each Extractor turns one image URL into text which judges can read. Extractors fail independently; callers are expected to drop failures rather than abort.
package visual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mentionmod/mentionmod/util"
	"github.com/mentionmod/mentionmod/util/ssrf"

	"github.com/carlmjohnson/versioninfo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

type Extractor interface {
	Name() string
	Extract(ctx context.Context, imageURL string) (string, error)
}

// Default cap on downloaded image size
const DefaultMaxImageBytes = 10 * 1024 * 1024

// Upper bound on one shared download, independent of the callers waiting on it
const fetchTimeout = 60 * time.Second

type Image struct {
	Data     []byte
	MimeType string
}

// Downloads images for extractors. Several extractors usually look at the same attachment at the same time, so concurrent fetches of one URL are collapsed and recent images are kept in a small cache.
type ImageFetcher struct {
	Client   *http.Client
	MaxBytes int64

	group singleflight.Group
	cache *expirable.LRU[string, *Image]
}

func NewImageFetcher(client *http.Client, maxBytes int64) *ImageFetcher {
	if client == nil {
		client = util.RobustHTTPClient()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageFetcher{
		Client:   client,
		MaxBytes: maxBytes,
		cache:    expirable.NewLRU[string, *Image](64, nil, 5*time.Minute),
	}
}

func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string) (*Image, error) {
	if img, ok := f.cache.Get(imageURL); ok {
		return img, nil
	}
	// the shared download outlives any single caller; each caller stops waiting on its own ctx
	ch := f.group.DoChan(imageURL, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		img, err := f.fetch(fctx, imageURL)
		if err != nil {
			return nil, err
		}
		f.cache.Add(imageURL, img)
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Image), nil
	}
}

func (f *ImageFetcher) fetch(ctx context.Context, imageURL string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "mentionmod/"+versioninfo.Short())

	start := time.Now()
	resp, err := f.Client.Do(req)
	if errors.Is(err, ssrf.ErrBlocked) {
		imageFetchCount.WithLabelValues("blocked").Inc()
		return nil, fmt.Errorf("image fetch refused: %w", err)
	}
	if err != nil {
		imageFetchCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()
	imageFetchCount.WithLabelValues(fmt.Sprint(resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch failed statusCode=%d", resp.StatusCode)
	}
	if resp.ContentLength > f.MaxBytes {
		return nil, fmt.Errorf("image too large: %d bytes", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("image too large: more than %d bytes", f.MaxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image fetch returned empty body")
	}
	imageFetchDuration.Observe(time.Since(start).Seconds())
	imageFetchBytes.Observe(float64(len(data)))

	mimeType := resp.Header.Get("Content-Type")
	if mt, _, ok := strings.Cut(mimeType, ";"); ok {
		mimeType = mt
	}
	mimeType = strings.TrimSpace(mimeType)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("not an image: %s", mimeType)
	}
	return &Image{Data: data, MimeType: mimeType}, nil
}

const captionPrompt = `Transcribe all text visible in this image exactly, including URLs, handles and invite codes. Then describe the image in one or two sentences. If there is no text, say "no text" before the description.`

// Wraps an extractor call with metrics. Empty output is reported as an error so it does not show up as evidence.
func observe(ctx context.Context, name string, fn func(context.Context) (string, error)) (string, error) {
	start := time.Now()
	text, err := fn(ctx)
	extractDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		extractCount.WithLabelValues(name, "error").Inc()
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		extractCount.WithLabelValues(name, "empty").Inc()
		return "", fmt.Errorf("%s: no text extracted", name)
	}
	extractCount.WithLabelValues(name, "ok").Inc()
	return text, nil
}
