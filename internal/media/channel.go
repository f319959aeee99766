package media

import "strings"

const (
	// DefaultGroup is used for CSV rows without a groupName cell.
	DefaultGroup = "Default"
	// M3UGroup is the group given to every entry of an M3U source.
	M3UGroup = "M3U Streams"
	// SettingsGroup names the trailing row that leads back to setup.
	SettingsGroup = "Settings"
	// UnnamedStream titles #EXTINF lines that carry no title.
	UnnamedStream = "Unnamed Stream"
)

// Channel is one entry of the channel list.
type Channel struct {
	Title        string
	URL          string
	ThumbnailURL string // empty when the source has none
	Group        string
}

// HasThumbnail reports whether the channel carries a thumbnail URL.
func (c Channel) HasThumbnail() bool {
	return c.ThumbnailURL != ""
}

// IsSettings reports whether selecting the channel should open setup.
func (c Channel) IsSettings() bool {
	return strings.EqualFold(strings.TrimSpace(c.URL), "settings") ||
		strings.EqualFold(strings.TrimSpace(c.Title), "settings")
}

// SettingsChannel returns the entry that leads back to setup.
func SettingsChannel() Channel {
	return Channel{Title: "Settings", URL: "Settings", Group: SettingsGroup}
}
