package media

import (
	"path"
	"strings"
)

var streamSuffixes = []string{".mp4", ".m3u8", ".ts", ".m3u"}

var streamContentTypes = []string{
	"video/",
	"application/x-mpegurl",
	"application/vnd.apple.mpegurl",
}

var playlistExts = map[string]bool{
	".m3u":  true,
	".m3u8": true,
}

func normalize(rawURL string) string {
	return strings.ToLower(strings.TrimSpace(rawURL))
}

// IsVideoStream reports whether a URL, optionally paired with a probed
// content type, should be handed to the player instead of the page view.
// The URL is checked first and never causes network access.
func IsVideoStream(rawURL, contentType string) bool {
	u := normalize(rawURL)
	for _, suffix := range streamSuffixes {
		if strings.HasSuffix(u, suffix) {
			return true
		}
	}
	if strings.Contains(u, ".m3u8?") || strings.HasPrefix(u, "rtmp://") {
		return true
	}
	return IsStreamContentType(contentType)
}

// IsStreamContentType reports whether a Content-Type names video or an HLS playlist.
func IsStreamContentType(contentType string) bool {
	ct := normalize(contentType)
	if ct == "" {
		return false
	}
	for _, want := range streamContentTypes {
		if strings.Contains(ct, want) {
			return true
		}
	}
	return false
}

// IsHLS reports whether a URL names an HLS playlist by suffix.
func IsHLS(rawURL string) bool {
	u := normalize(rawURL)
	return strings.HasSuffix(u, ".m3u8") || strings.Contains(u, ".m3u8?")
}

// IsHLSContentType reports whether a Content-Type is one of the HLS playlist types.
func IsHLSContentType(contentType string) bool {
	ct := normalize(contentType)
	return strings.Contains(ct, "application/x-mpegurl") || strings.Contains(ct, "application/vnd.apple.mpegurl")
}

// IsRTMP reports whether a URL uses the rtmp scheme.
func IsRTMP(rawURL string) bool {
	return strings.HasPrefix(normalize(rawURL), "rtmp://")
}

// IsPlaylistExt returns true if the extension is an M3U playlist format.
func IsPlaylistExt(ext string) bool {
	return playlistExts[strings.ToLower(ext)]
}

// IsPlaylistPath reports whether a locator path ends in an M3U extension,
// ignoring any query string.
func IsPlaylistPath(locator string) bool {
	p := strings.TrimSpace(locator)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return IsPlaylistExt(path.Ext(p))
}
