package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/metrics"
)

//go:embed bundled
var bundledFS embed.FS

// ErrFetch marks a channel list that could not be read.
var ErrFetch = errors.New("fetch error")

// FetchError is returned when a locator cannot be read. Msg is the text
// shown to the user.
type FetchError struct {
	Locator string
	Msg     string
	Err     error
}

func (e *FetchError) Error() string { return e.Msg }

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ContentResolver opens content:// URIs. Hosts without a content provider
// leave it nil and such locators fail with a FetchError.
type ContentResolver interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

const (
	defaultFetchTimeout = 15 * time.Second
	maxListSize         = 16 << 20
	clockSkewHint       = " Please check your device's date and time settings."
)

// Options configures a Fetcher. Zero values select defaults.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
	// Insecure is used once when the certificate presented by a remote host
	// is not yet valid, which usually means the local clock is behind.
	Insecure *http.Client
	Content  ContentResolver
	Bundled  fs.FS
}

// Fetcher reads channel lists from any supported locator.
type Fetcher struct {
	client    *http.Client
	insecure  *http.Client
	userAgent string
	content   ContentResolver
	bundled   fs.FS
	logger    zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "csvtv"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: gzhttp.Transport(http.DefaultTransport.(*http.Transport).Clone()),
			Timeout:   opts.Timeout,
		}
	}
	if opts.Insecure == nil {
		opts.Insecure = insecureClient(opts.Client, opts.Timeout)
	}
	if opts.Bundled == nil {
		sub, err := fs.Sub(bundledFS, "bundled")
		if err != nil {
			panic(err)
		}
		opts.Bundled = sub
	}
	return &Fetcher{
		client:    opts.Client,
		insecure:  opts.Insecure,
		userAgent: opts.UserAgent,
		content:   opts.Content,
		bundled:   opts.Bundled,
		logger:    log.WithComponent("source"),
	}
}

func insecureClient(base *http.Client, timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := base.Transport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
	return &http.Client{Transport: gzhttp.Transport(transport), Timeout: timeout}
}

// Fetch reads and parses the channel list named by locator.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]media.Channel, error) {
	kind := KindOf(locator)
	data, err := f.FetchRaw(ctx, locator)
	if err != nil {
		metrics.SourceFetches.WithLabelValues(kind.String(), "error").Inc()
		return nil, err
	}
	channels, err := media.Parse(data, locator)
	if err != nil {
		metrics.SourceFetches.WithLabelValues(kind.String(), "parse_error").Inc()
		return nil, err
	}
	metrics.SourceFetches.WithLabelValues(kind.String(), "ok").Inc()
	f.logger.Debug().
		Str(log.FieldLocator, log.SafeURL(locator)).
		Int(log.FieldCount, len(channels)).
		Msg("channel list parsed")
	return channels, nil
}

// FetchRaw returns the unparsed body named by locator.
func (f *Fetcher) FetchRaw(ctx context.Context, locator string) ([]byte, error) {
	switch KindOf(locator) {
	case KindBundled:
		return f.readBundled(locator)
	case KindContent:
		return f.readContent(ctx, locator)
	case KindFile:
		return f.readFile(locator)
	default:
		return f.fetchRemote(ctx, locator)
	}
}

func (f *Fetcher) readBundled(locator string) ([]byte, error) {
	name := bundledName(locator)
	for _, candidate := range []string{name, name + ".csv", name + ".m3u"} {
		data, err := fs.ReadFile(f.bundled, candidate)
		if err == nil {
			return data, nil
		}
	}
	return nil, &FetchError{
		Locator: locator,
		Msg:     "Failed to read local CSV: resource " + name + " not found",
		Err:     fs.ErrNotExist,
	}
}

func (f *Fetcher) readContent(ctx context.Context, locator string) ([]byte, error) {
	if f.content == nil {
		return nil, &FetchError{Locator: locator, Msg: "Failed to read local CSV: Input stream is null"}
	}
	rc, err := f.content.Open(ctx, locator)
	if err != nil {
		return nil, &FetchError{Locator: locator, Msg: "Failed to read local CSV: " + err.Error(), Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxListSize))
	if err != nil {
		return nil, &FetchError{Locator: locator, Msg: "Failed to read local CSV: " + err.Error(), Err: err}
	}
	return data, nil
}

func (f *Fetcher) readFile(locator string) ([]byte, error) {
	p := FilePath(locator)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory", p)
		}
		return nil, &FetchError{
			Locator: locator,
			Msg:     "Failed to read file: File does not exist or is not readable",
			Err:     err,
		}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &FetchError{Locator: locator, Msg: "Failed to read file: " + err.Error(), Err: err}
	}
	return data, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, locator string) ([]byte, error) {
	data, err := f.get(ctx, f.client, locator)
	if err == nil {
		return data, nil
	}
	if !isCertNotYetValid(err) {
		return nil, &FetchError{Locator: locator, Msg: "Failed to fetch sheet data: " + err.Error(), Err: err}
	}

	f.logger.Warn().
		Err(err).
		Str(log.FieldLocator, log.SafeURL(locator)).
		Msg("certificate not yet valid, retrying without verification")
	data, err = f.get(ctx, f.insecure, locator)
	if err != nil {
		return nil, &FetchError{
			Locator: locator,
			Msg:     "Failed to fetch sheet data: " + err.Error() + "." + clockSkewHint,
			Err:     err,
		}
	}
	return data, nil
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return http.StatusText(e.code)
}

func (f *Fetcher) get(ctx context.Context, client *http.Client, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError{code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxListSize))
}

// isCertNotYetValid reports whether err is a TLS failure caused by a
// certificate whose validity period has not started.
func isCertNotYetValid(err error) bool {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return invalid.Reason == x509.Expired && strings.Contains(invalid.Detail, "is before")
	}
	return false
}
