package source

import (
	"testing"

	"github.com/olivier-w/csvtv/internal/media"
)

func TestRowsSortedWithTrailingSettings(t *testing.T) {
	channels := []media.Channel{
		{Title: "B1", URL: "u1", Group: "Sports"},
		{Title: "A1", URL: "u2", Group: "Movies"},
		{Title: "B2", URL: "u3", Group: "Sports"},
	}
	rows := Rows(channels)

	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].Header != "Movies" || rows[1].Header != "Sports" || !rows[2].IsSettings() {
		t.Fatalf("unexpected row order: %q %q %q", rows[0].Header, rows[1].Header, rows[2].Header)
	}
	if rows[1].Channels[0].Title != "B1" || rows[1].Channels[1].Title != "B2" {
		t.Fatalf("row entries lost source order: %+v", rows[1].Channels)
	}
	if !rows[2].Channels[0].IsSettings() {
		t.Fatalf("settings row entry = %+v", rows[2].Channels[0])
	}
}

func TestRowsEmptyInput(t *testing.T) {
	rows := Rows(nil)
	if len(rows) != 1 || !rows[0].IsSettings() {
		t.Fatalf("Rows(nil) = %+v, want settings row only", rows)
	}
}

func TestRowsForGroupsPlaceholder(t *testing.T) {
	rows := RowsForGroups([]string{"Kids", "News", "Kids"}, []media.Channel{{Title: "N", URL: "u", Group: "News"}})
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	kids := rows[0]
	if kids.Header != "Kids" || len(kids.Channels) != 1 || !IsPlaceholder(kids.Channels[0]) {
		t.Fatalf("expected placeholder row, got %+v", kids)
	}
	if kids.Channels[0].Title != "No videos available for this group." {
		t.Fatalf("placeholder title = %q", kids.Channels[0].Title)
	}
}
