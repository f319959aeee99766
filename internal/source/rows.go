package source

import (
	"sort"

	"github.com/olivier-w/csvtv/internal/media"
)

// PlaceholderTitle fills a row whose group has no playable entries.
const PlaceholderTitle = "No videos available for this group."

// Row is one browsable group of channels.
type Row struct {
	Header   string
	Channels []media.Channel
}

// IsSettings reports whether the row is the trailing settings row.
func (r Row) IsSettings() bool {
	return r.Header == media.SettingsGroup
}

// IsPlaceholder reports whether c stands in for an empty group.
func IsPlaceholder(c media.Channel) bool {
	return c.URL == "" && c.Title == PlaceholderTitle
}

// Rows groups channels by name, sorted, followed by the settings row.
// Channels keep their source order within a row.
func Rows(channels []media.Channel) []Row {
	seen := make(map[string]bool)
	var groups []string
	for _, c := range channels {
		if !seen[c.Group] {
			seen[c.Group] = true
			groups = append(groups, c.Group)
		}
	}
	return RowsForGroups(groups, channels)
}

// RowsForGroups builds one row per named group, sorted, even when no
// channel belongs to it. Empty groups get a placeholder entry.
func RowsForGroups(groups []string, channels []media.Channel) []Row {
	byGroup := make(map[string][]media.Channel)
	for _, c := range channels {
		byGroup[c.Group] = append(byGroup[c.Group], c)
	}

	names := make([]string, 0, len(groups))
	seen := make(map[string]bool)
	for _, g := range groups {
		if g == media.SettingsGroup || seen[g] {
			continue
		}
		seen[g] = true
		names = append(names, g)
	}
	sort.Strings(names)

	rows := make([]Row, 0, len(names)+1)
	for _, g := range names {
		entries := byGroup[g]
		if len(entries) == 0 {
			entries = []media.Channel{{Title: PlaceholderTitle, Group: g}}
		}
		rows = append(rows, Row{Header: g, Channels: entries})
	}
	return append(rows, settingsRow())
}

// SettingsOnlyRows is shown when no channel list could be loaded.
func SettingsOnlyRows() []Row {
	return []Row{settingsRow()}
}

func settingsRow() Row {
	return Row{Header: media.SettingsGroup, Channels: []media.Channel{media.SettingsChannel()}}
}
