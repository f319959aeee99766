package player

import (
	"strconv"
	"strings"
	"time"

	"github.com/olivier-w/csvtv/internal/media"
)

// Transport selects how the engine opens a media URL.
type Transport int

const (
	TransportProgressive Transport = iota
	TransportHLS
	TransportRTMP
)

func (t Transport) String() string {
	switch t {
	case TransportHLS:
		return "hls"
	case TransportRTMP:
		return "rtmp"
	default:
		return "progressive"
	}
}

// SelectTransport picks the transport for mediaURL. contentType is the
// resolver's classification and may be empty.
func SelectTransport(mediaURL, contentType string) Transport {
	switch {
	case media.IsRTMP(mediaURL):
		return TransportRTMP
	case media.IsHLS(mediaURL), media.IsHLSContentType(contentType):
		return TransportHLS
	default:
		return TransportProgressive
	}
}

// Network holds the settings applied to HTTP-based transports.
type Network struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	InsecureTLS    bool
}

// DefaultNetwork matches the client used for channel streams: no
// certificate checks, 10s timeouts.
func DefaultNetwork() Network {
	return Network{
		UserAgent:      "csvtv",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    10 * time.Second,
		InsecureTLS:    true,
	}
}

// Source is everything an engine needs to open a stream.
type Source struct {
	URL       string
	Transport Transport
	Buffer    BufferConfig
	Network   Network
	Start     time.Duration
}

// InputArgs returns the ffmpeg input options for s, ending with -i URL.
func (s Source) InputArgs() []string {
	var args []string
	switch s.Transport {
	case TransportRTMP:
		args = append(args, "-rtmp_live", "live")
		if s.Network.ConnectTimeout > 0 {
			args = append(args, "-timeout", strconv.FormatInt(int64(s.Network.ConnectTimeout/time.Second), 10))
		}
	default:
		args = append(args, s.httpArgs()...)
		if s.Transport == TransportHLS {
			// Start from the playlist without probing whole segments.
			args = append(args, "-probesize", "500000", "-analyzeduration", "1000000")
		} else {
			args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
		}
	}
	if s.Start > 0 {
		args = append(args, "-ss", formatSeekTime(s.Start.Seconds()))
	}
	return append(args, "-i", s.URL)
}

func (s Source) httpArgs() []string {
	if !isHTTP(s.URL) {
		return nil
	}
	n := s.Network
	var args []string
	if n.UserAgent != "" {
		args = append(args, "-user_agent", n.UserAgent)
	}
	timeout := n.ReadTimeout
	if n.ConnectTimeout > timeout {
		timeout = n.ConnectTimeout
	}
	if timeout > 0 {
		args = append(args, "-rw_timeout", strconv.FormatInt(timeout.Microseconds(), 10))
	}
	if n.InsecureTLS && strings.HasPrefix(strings.ToLower(s.URL), "https://") {
		args = append(args, "-tls_verify", "0")
	}
	return args
}

func isHTTP(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
