package source

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivier-w/csvtv/internal/media"
)

const sampleCSV = "title,url,groupName\nNews,https://example.com/news.m3u8,Live\n"

type stubContent map[string]string

func (s stubContent) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	body, ok := s[uri]
	if !ok {
		return nil, errors.New("no such document")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestFetchBundledDefault(t *testing.T) {
	f := NewFetcher(Options{})
	channels, err := f.Fetch(context.Background(), DefaultLocator)
	require.NoError(t, err)
	require.NotEmpty(t, channels)
	for _, c := range channels {
		assert.NotEmpty(t, c.Title)
		assert.NotEmpty(t, c.URL)
	}
}

func TestFetchBundledMissing(t *testing.T) {
	f := NewFetcher(Options{Bundled: fstest.MapFS{}})
	_, err := f.Fetch(context.Background(), "bundled://nothing")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetchContentResolver(t *testing.T) {
	f := NewFetcher(Options{Content: stubContent{"content://docs/1": sampleCSV}})

	channels, err := f.Fetch(context.Background(), "content://docs/1")
	require.NoError(t, err)
	assert.Equal(t, []media.Channel{{Title: "News", URL: "https://example.com/news.m3u8", Group: "Live"}}, channels)

	_, err = f.Fetch(context.Background(), "content://docs/2")
	assert.ErrorIs(t, err, ErrFetch)

	_, err = NewFetcher(Options{}).Fetch(context.Background(), "content://docs/1")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.m3u")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U\n#EXTINF:-1,One\nhttp://a/1.ts\n"), 0o644))

	f := NewFetcher(Options{})
	channels, err := f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, media.M3UGroup, channels[0].Group)

	_, err = f.Fetch(context.Background(), "file://"+filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, "Failed to read file: File does not exist or is not readable", err.Error())
}

func TestFetchRemote(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, sampleCSV)
	}))
	defer srv.Close()

	f := NewFetcher(Options{UserAgent: "csvtv-test"})
	channels, err := f.Fetch(context.Background(), srv.URL+"/list")
	require.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, "csvtv-test", ua)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, "Failed to fetch sheet data: Not Found", err.Error())
}

func TestFetchRemoteParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "name,link\nA,http://a\n")
	}))
	defer srv.Close()

	channels, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, media.ErrParse)
	assert.Empty(t, channels)
}

func TestFetchRetriesInsecureOnNotYetValidCertificate(t *testing.T) {
	cert, pool := futureCertificate(t)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sampleCSV)
	}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	srv.StartTLS()
	defer srv.Close()

	strict := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	f := NewFetcher(Options{Client: strict})

	channels, err := f.Fetch(context.Background(), srv.URL+"/list.csv")
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestFetchDoesNotRetryOtherTLSFailures(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sampleCSV)
	}))
	defer srv.Close()

	_, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrFetch)
	assert.NotContains(t, err.Error(), "date and time")
}

// futureCertificate returns a self-signed localhost certificate whose
// validity starts tomorrow, and a pool trusting it.
func futureCertificate(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(24 * time.Hour),
		NotAfter:              time.Now().Add(48 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(parsed)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: parsed}, pool
}
