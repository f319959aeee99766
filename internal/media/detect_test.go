package media

import "testing"

func TestIsVideoStreamBySuffix(t *testing.T) {
	for _, u := range []string{
		"http://x/a.mp4",
		"http://x/live.m3u8",
		"http://x/seg.ts",
		"http://x/list.m3u",
		"  HTTP://X/A.MP4  ",
		"https://cdn.example.com/master.m3u8?token=abc",
		"rtmp://live.example.com/app/key",
		"RTMP://LIVE.EXAMPLE.COM/app",
	} {
		if !IsVideoStream(u, "") {
			t.Fatalf("expected %q to classify as stream", u)
		}
	}
}

func TestIsVideoStreamRejectsPages(t *testing.T) {
	for _, u := range []string{
		"https://example.com/",
		"https://example.com/watch?v=1",
		"https://example.com/video.mp4.html",
		"",
	} {
		if IsVideoStream(u, "") {
			t.Fatalf("expected %q to classify as page", u)
		}
	}
}

func TestIsVideoStreamByContentType(t *testing.T) {
	cases := map[string]bool{
		"video/mp4":                       true,
		"Video/MP2T":                      true,
		"application/x-mpegURL":           true,
		"application/vnd.apple.mpegurl":   true,
		"text/html; charset=utf-8":        false,
		"application/octet-stream":        false,
		"":                                false,
	}
	for ct, want := range cases {
		if got := IsVideoStream("https://example.com/play", ct); got != want {
			t.Fatalf("IsVideoStream(page, %q) = %v, want %v", ct, got, want)
		}
	}
}

func TestIsHLSAndRTMP(t *testing.T) {
	if !IsHLS("https://x/a.m3u8") || !IsHLS("https://x/a.M3U8?x=1") {
		t.Fatal("expected m3u8 URLs to be HLS")
	}
	if IsHLS("https://x/a.mp4") {
		t.Fatal("did not expect mp4 to be HLS")
	}
	if !IsRTMP(" rtmp://x/app ") {
		t.Fatal("expected rtmp URL to be RTMP")
	}
	if !IsHLSContentType("application/vnd.apple.mpegurl") {
		t.Fatal("expected apple mpegurl to be HLS content type")
	}
}

func TestIsPlaylistPathIgnoresQuery(t *testing.T) {
	if !IsPlaylistPath("https://example.com/list.m3u?download=1") {
		t.Fatal("expected m3u path with query to be a playlist")
	}
	if IsPlaylistPath("https://example.com/list.csv") {
		t.Fatal("did not expect csv to be a playlist")
	}
}
