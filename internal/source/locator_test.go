package source

import "testing"

func TestKindOf(t *testing.T) {
	tests := []struct {
		locator string
		want    Kind
	}{
		{DefaultLocator, KindBundled},
		{"bundled://demo", KindBundled},
		{"content://com.android.providers/document/12", KindContent},
		{"file:///sdcard/Download/tv.csv", KindFile},
		{"https://example.com/list.csv", KindRemote},
		{"http://example.com/list.m3u", KindRemote},
	}
	for _, tt := range tests {
		if got := KindOf(tt.locator); got != tt.want {
			t.Errorf("KindOf(%q) = %v, want %v", tt.locator, got, tt.want)
		}
	}
}

func TestExpandSheetID(t *testing.T) {
	got := ExpandSheetID("ABC123")
	want := "https://docs.google.com/spreadsheets/d/e/ABC123/pub?gid=0&single=true&output=csv"
	if got != want {
		t.Fatalf("ExpandSheetID() = %q, want %q", got, want)
	}
}

func TestResolveSetupInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		current string
		want    string
	}{
		{"blank first run", "  ", "", DefaultLocator},
		{"blank keeps current", "", "https://example.com/a.csv", "https://example.com/a.csv"},
		{"sheet id", " 2PACX-1vXYZ ", "", ExpandSheetID("2PACX-1vXYZ")},
		{"https kept", "https://example.com/a.csv", "", "https://example.com/a.csv"},
		{"embedded http kept", "see http://example.com", "", "see http://example.com"},
		{"file kept", "file:///sdcard/Download/tv.csv", "", "file:///sdcard/Download/tv.csv"},
		{"content kept", "content://provider/doc", "", "content://provider/doc"},
		{"bundled kept", "bundled://default_csv", "", "bundled://default_csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveSetupInput(tt.input, tt.current); got != tt.want {
				t.Fatalf("ResolveSetupInput(%q, %q) = %q, want %q", tt.input, tt.current, got, tt.want)
			}
		})
	}
}

func TestFilePath(t *testing.T) {
	if got := FilePath("file:///tmp/list.csv"); got != "/tmp/list.csv" {
		t.Fatalf("FilePath() = %q", got)
	}
}

func TestBundledName(t *testing.T) {
	if got := bundledName(DefaultLocator); got != "default_csv" {
		t.Fatalf("bundledName() = %q, want default_csv", got)
	}
	if got := bundledName("bundled://extra?x=1"); got != "extra" {
		t.Fatalf("bundledName() = %q, want extra", got)
	}
}
