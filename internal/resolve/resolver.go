// Package resolve decides whether a channel URL is playable media or a web
// page, probing the network when the URL alone does not tell.
package resolve

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/metrics"
)

// ErrResolution marks every resolver failure.
var ErrResolution = errors.New("resolution failed")

// Error reports a failed probe. It matches ErrResolution with errors.Is.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return "Failed to resolve URL: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrResolution }

// Target is the outcome of resolving a URL.
type Target struct {
	FinalURL    string
	ContentType string // empty when unknown
	IsStream    bool
	Playlist    PlaylistKind
	Live        bool // media playlist without an end marker
}

// Runner executes blocking work off the UI loop.
type Runner interface {
	Go(task func()) error
}

// Poster delivers callbacks on the UI loop.
type Poster interface {
	Post(fn func())
}

const (
	defaultProbeTimeout = 10 * time.Second
	defaultCacheSize    = 1024
	probeBodyLimit      = 128 * 1024
)

// Options configures a Resolver. Zero values select defaults.
type Options struct {
	Client       *http.Client
	ProbeTimeout time.Duration
	CacheSize    int
	CacheTTL     time.Duration // 0 keeps entries until evicted by size
	RateLimit    int           // probes per second, 0 = unlimited
	UserAgent    string
	Runner       Runner
	Poster       Poster
}

// Resolver classifies URLs and caches results by the original input string.
// It is safe for concurrent use.
type Resolver struct {
	client    *http.Client
	cache     *otter.Cache[string, Target]
	limiter   ratelimit.Limiter
	userAgent string
	runner    Runner
	poster    Poster
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "csvtv"
	}
	client := opts.Client
	if client == nil {
		client = NewLenientClient(opts.ProbeTimeout)
	}

	cacheOpts := &otter.Options[string, Target]{MaximumSize: opts.CacheSize}
	if opts.CacheTTL > 0 {
		cacheOpts.ExpiryCalculator = otter.ExpiryWriting[string, Target](opts.CacheTTL)
	}
	cache, err := otter.New(cacheOpts)
	if err != nil {
		return nil, fmt.Errorf("creating resolver cache: %w", err)
	}

	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		client:    client,
		cache:     cache,
		limiter:   limiter,
		userAgent: opts.UserAgent,
		runner:    opts.Runner,
		poster:    opts.Poster,
		logger:    log.WithComponent("resolver"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// NewLenientClient returns an HTTP client that skips certificate
// verification. Channel lists routinely point at IPTV hosts with
// self-signed or expired certificates.
func NewLenientClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Resolve classifies rawURL, issuing at most one HEAD and one GET.
// On failure the returned Target carries the best-known URL and content type.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Target, error) {
	if strings.TrimSpace(rawURL) == "" {
		metrics.ResolveRequests.WithLabelValues("error").Inc()
		return Target{}, &Error{URL: rawURL, Err: errors.New("URL is empty")}
	}

	if media.IsVideoStream(rawURL, "") {
		metrics.ResolveRequests.WithLabelValues("shortcut").Inc()
		return Target{FinalURL: rawURL, IsStream: true}, nil
	}

	if t, ok := r.cache.GetIfPresent(rawURL); ok {
		metrics.ResolveRequests.WithLabelValues("cache_hit").Inc()
		return t, nil
	}

	candidate, contentType, err := r.head(ctx, rawURL)
	if err != nil {
		metrics.ResolveRequests.WithLabelValues("error").Inc()
		r.logger.Debug().Err(err).Str(log.FieldURL, log.SafeURL(rawURL)).Msg("HEAD probe failed")
		return Target{FinalURL: rawURL}, &Error{URL: rawURL, Err: err}
	}

	if media.IsVideoStream(candidate, contentType) {
		t := Target{FinalURL: candidate, ContentType: contentType, IsStream: true}
		r.cache.Set(rawURL, t)
		metrics.ResolveRequests.WithLabelValues("stream").Inc()
		r.logResolved(rawURL, t)
		return t, nil
	}

	t, status, err := r.sniff(ctx, candidate, contentType)
	if err != nil {
		metrics.ResolveRequests.WithLabelValues("error").Inc()
		r.logger.Debug().Err(err).Str(log.FieldURL, log.SafeURL(candidate)).Msg("GET probe failed")
		return t, &Error{URL: rawURL, Err: err}
	}
	if !t.IsStream && (status < 200 || status >= 400) {
		metrics.ResolveRequests.WithLabelValues("error").Inc()
		return t, &Error{URL: rawURL, Err: fmt.Errorf("unexpected HTTP status %d", status)}
	}

	r.cache.Set(rawURL, t)
	if t.IsStream {
		metrics.ResolveRequests.WithLabelValues("stream").Inc()
	} else {
		metrics.ResolveRequests.WithLabelValues("page").Inc()
	}
	r.logResolved(rawURL, t)
	return t, nil
}

// ResolveAsync runs Resolve on the runner and delivers the result through
// the poster. Stream URLs are answered without touching the runner.
func (r *Resolver) ResolveAsync(rawURL string, done func(Target, error)) {
	deliver := func(t Target, err error) {
		if r.poster != nil {
			r.poster.Post(func() { done(t, err) })
			return
		}
		done(t, err)
	}

	if strings.TrimSpace(rawURL) != "" && media.IsVideoStream(rawURL, "") {
		deliver(Target{FinalURL: rawURL, IsStream: true}, nil)
		return
	}

	task := func() {
		t, err := r.Resolve(r.ctx, rawURL)
		deliver(t, err)
	}
	if r.runner == nil {
		go task()
		return
	}
	if err := r.runner.Go(task); err != nil {
		deliver(Target{FinalURL: rawURL}, &Error{URL: rawURL, Err: err})
	}
}

// Cached returns the cached Target for rawURL, if any.
func (r *Resolver) Cached(rawURL string) (Target, bool) {
	return r.cache.GetIfPresent(rawURL)
}

// Invalidate drops rawURL from the cache.
func (r *Resolver) Invalidate(rawURL string) {
	r.cache.Invalidate(rawURL)
}

// CacheSize returns the approximate number of cached entries.
func (r *Resolver) CacheSize() int {
	return r.cache.EstimatedSize()
}

// Close cancels in-flight probes started by ResolveAsync.
func (r *Resolver) Close() {
	r.cancel()
}

func (r *Resolver) head(ctx context.Context, rawURL string) (finalURL, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", r.userAgent)

	r.limiter.Take()
	metrics.ResolveProbes.WithLabelValues(http.MethodHead).Inc()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	finalURL = rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return finalURL, normalizeContentType(resp.Header.Get("Content-Type")), nil
}

// sniff issues the GET probe. The returned Target is populated even when
// err is set or the status is unsuccessful.
func (r *Resolver) sniff(ctx context.Context, candidate, headContentType string) (Target, int, error) {
	best := Target{FinalURL: candidate, ContentType: headContentType}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return best, 0, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	r.limiter.Take()
	metrics.ResolveProbes.WithLabelValues(http.MethodGet).Inc()
	resp, err := r.client.Do(req)
	if err != nil {
		return best, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))

	t := Target{FinalURL: candidate, ContentType: headContentType}
	if resp.Request != nil && resp.Request.URL != nil {
		t.FinalURL = resp.Request.URL.String()
	}
	if ct := normalizeContentType(resp.Header.Get("Content-Type")); ct != "" {
		t.ContentType = ct
	}
	if hasPlaylistBodyMarker(string(body)) {
		t.ContentType = mpegURLContentType
		t.Playlist, t.Live = playlistKind(string(body))
	}
	t.IsStream = media.IsVideoStream(t.FinalURL, t.ContentType)
	return t, resp.StatusCode, nil
}

func (r *Resolver) logResolved(rawURL string, t Target) {
	r.logger.Debug().
		Str(log.FieldURL, log.SafeURL(rawURL)).
		Str(log.FieldFinalURL, log.SafeURL(t.FinalURL)).
		Str(log.FieldContentType, t.ContentType).
		Bool("stream", t.IsStream).
		Stringer("playlist", t.Playlist).
		Msg("resolved")
}
