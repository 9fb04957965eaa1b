// Package downloader stores record images on disk under deterministic names.
package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-ring-crawler/fetcher"
	"github.com/aluiziolira/go-ring-crawler/models"
)

const (
	defaultExt      = ".jpg"
	defaultMaxBytes = 32 << 20
)

var allowedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".avif": true, ".gif": true,
}

// Options configures a Downloader.
type Options struct {
	Dir         string
	Parallelism int
	UserAgent   string
	Timeout     time.Duration
	// MaxBytes caps one image body. A body that reaches it is treated as
	// truncated and not saved.
	MaxBytes int
}

// Report counts the outcome of one Download call.
type Report struct {
	Downloaded int
	Cached     int
	Failed     int
}

// Downloader fetches images with a bounded number of concurrent requests.
type Downloader struct {
	opts      Options
	transport http.RoundTripper
}

// New returns a downloader writing below opts.Dir.
func New(opts Options) (*Downloader, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &Downloader{
		opts: opts,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// WithTransport replaces the underlying HTTP transport.
func (d *Downloader) WithTransport(rt http.RoundTripper) {
	d.transport = rt
}

// FileName derives the stored name of one image. The same inputs always
// produce the same name.
func FileName(slug string, recordIdx, position int, imageURL string) string {
	sum := md5.Sum([]byte(imageURL))
	return fmt.Sprintf("%s_%03d_%02d_%s%s", slug, recordIdx, position, hex.EncodeToString(sum[:])[:12], extension(imageURL))
}

func extension(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if allowedExts[ext] {
		return ext
	}
	return defaultExt
}

// Path is where FileName is stored for slug.
func (d *Downloader) Path(slug string, recordIdx, position int, imageURL string) string {
	return filepath.Join(d.opts.Dir, slug, FileName(slug, recordIdx, position, imageURL))
}

// Download stores every image of records and sets LocalPath on success.
// Existing files are reused without a request. Failures leave LocalPath nil.
func (d *Downloader) Download(ctx context.Context, slug string, records []models.CanonicalRecord) (Report, error) {
	var report Report
	if err := os.MkdirAll(filepath.Join(d.opts.Dir, slug), 0o755); err != nil {
		return report, fmt.Errorf("create image directory: %w", err)
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.UserAgent(d.opts.UserAgent),
		colly.MaxBodySize(d.opts.MaxBytes),
	)
	c.SetRequestTimeout(d.opts.Timeout)
	c.IgnoreRobotsTxt = true
	c.WithTransport(d.transport)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: d.opts.Parallelism,
	}); err != nil {
		return report, fmt.Errorf("configure rate limits: %w", err)
	}

	var mu sync.Mutex
	setLocal := func(rec, pos int, localPath string) {
		mu.Lock()
		defer mu.Unlock()
		records[rec].Images[pos].LocalPath = &localPath
	}
	fail := func(imageURL string, err error) {
		mu.Lock()
		report.Failed++
		mu.Unlock()
		slog.Warn("image download failed",
			slog.String("target", slug),
			slog.String("url", imageURL),
			slog.String("error_type", fetcher.ErrorLabel(err)),
			slog.Any("error", err),
		)
	}

	c.OnResponse(func(r *colly.Response) {
		rec := r.Ctx.GetAny("record").(int)
		pos := r.Ctx.GetAny("image").(int)
		dest := r.Ctx.Get("path")
		if len(r.Body) == 0 {
			fail(r.Request.URL.String(), fmt.Errorf("empty body"))
			return
		}
		if len(r.Body) >= d.opts.MaxBytes {
			fail(r.Request.URL.String(), fmt.Errorf("image truncated at %d bytes", d.opts.MaxBytes))
			return
		}
		if n, err := strconv.Atoi(r.Headers.Get("Content-Length")); err == nil && n > len(r.Body) {
			fail(r.Request.URL.String(), fmt.Errorf("short body: %d of %d bytes", len(r.Body), n))
			return
		}
		if err := r.Save(dest); err != nil {
			fail(r.Request.URL.String(), fmt.Errorf("save image: %w", err))
			return
		}
		setLocal(rec, pos, dest)
		mu.Lock()
		report.Downloaded++
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		fail(r.Request.URL.String(), fetcher.Classify(err, r.StatusCode))
	})

	for i := range records {
		for j := range records[i].Images {
			img := records[i].Images[j]
			dest := d.Path(slug, i, img.Position, img.URL)
			if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
				setLocal(i, j, dest)
				report.Cached++
				continue
			}
			if err := ctx.Err(); err != nil {
				c.Wait()
				return report, err
			}

			cctx := colly.NewContext()
			cctx.Put("record", i)
			cctx.Put("image", j)
			cctx.Put("path", dest)
			if err := c.Request(http.MethodGet, img.URL, nil, cctx, nil); err != nil {
				fail(img.URL, err)
			}
		}
	}
	c.Wait()

	slog.Debug("images stored",
		slog.String("target", slug),
		slog.Int("downloaded", report.Downloaded),
		slog.Int("cached", report.Cached),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
