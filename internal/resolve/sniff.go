package resolve

import (
	"mime"
	"strings"

	"github.com/grafov/m3u8"
)

// PlaylistKind describes an HLS body found while sniffing.
type PlaylistKind int

const (
	PlaylistNone PlaylistKind = iota
	PlaylistMaster
	PlaylistMedia
	PlaylistUnknown // body carried playlist markers but did not decode
)

func (k PlaylistKind) String() string {
	switch k {
	case PlaylistMaster:
		return "master"
	case PlaylistMedia:
		return "media"
	case PlaylistUnknown:
		return "unknown"
	default:
		return "none"
	}
}

const mpegURLContentType = "application/x-mpegurl"

func normalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}

// hasPlaylistBodyMarker reports whether the body contains #EXTM3U or #EXTINF.
func hasPlaylistBodyMarker(body string) bool {
	body = strings.TrimPrefix(body, "\uFEFF")
	return strings.Contains(body, "#EXTM3U") || strings.Contains(body, "#EXTINF")
}

// playlistKind decodes an HLS body to tell master playlists from media
// playlists. live is true for media playlists without #EXT-X-ENDLIST.
func playlistKind(body string) (kind PlaylistKind, live bool) {
	body = strings.TrimPrefix(body, "\uFEFF")
	p, listType, err := m3u8.DecodeFrom(strings.NewReader(body), false)
	if err != nil {
		return PlaylistUnknown, false
	}
	switch listType {
	case m3u8.MASTER:
		return PlaylistMaster, false
	case m3u8.MEDIA:
		if mp, ok := p.(*m3u8.MediaPlaylist); ok {
			return PlaylistMedia, !mp.Closed
		}
		return PlaylistMedia, false
	default:
		return PlaylistUnknown, false
	}
}
