// Package source fetches and parses channel lists from the locators a user
// can configure: bundled files, content URIs, local files, remote URLs and
// published Google Sheets.
package source

import (
	"net/url"
	"path"
	"strings"
)

// Kind identifies how a locator is fetched.
type Kind int

const (
	KindRemote Kind = iota
	KindBundled
	KindContent
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindBundled:
		return "bundled"
	case KindContent:
		return "content"
	case KindFile:
		return "file"
	default:
		return "remote"
	}
}

const (
	bundledAndroidPrefix = "android.resource://"
	bundledPrefix        = "bundled://"
	contentPrefix        = "content://"
	filePrefix           = "file://"

	// DefaultLocator names the channel list shipped with the binary.
	DefaultLocator = bundledAndroidPrefix + "csvtv/raw/default_csv"

	sheetURLPrefix = "https://docs.google.com/spreadsheets/d/e/"
	sheetURLSuffix = "/pub?gid=0&single=true&output=csv"
)

// KindOf classifies a locator by its scheme prefix.
func KindOf(locator string) Kind {
	switch {
	case strings.HasPrefix(locator, bundledAndroidPrefix), strings.HasPrefix(locator, bundledPrefix):
		return KindBundled
	case strings.HasPrefix(locator, contentPrefix):
		return KindContent
	case strings.HasPrefix(locator, filePrefix):
		return KindFile
	default:
		return KindRemote
	}
}

// IsSheetID reports whether setup input should be treated as a published
// Google Sheets id rather than a URL.
func IsSheetID(input string) bool {
	if input == "" {
		return false
	}
	if strings.Contains(input, "http://") || strings.Contains(input, "https://") {
		return false
	}
	return KindOf(input) == KindRemote
}

// ExpandSheetID returns the CSV export URL of a published sheet.
func ExpandSheetID(id string) string {
	return sheetURLPrefix + id + sheetURLSuffix
}

// ResolveSetupInput turns what the user typed on the setup screen into a
// locator. Blank input keeps the current locator, or the bundled default
// on first run.
func ResolveSetupInput(input, current string) string {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		if current != "" {
			return current
		}
		return DefaultLocator
	case IsSheetID(input):
		return ExpandSheetID(input)
	default:
		return input
	}
}

// FilePath returns the filesystem path of a file:// locator.
func FilePath(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		return u.Path
	}
	return strings.TrimPrefix(locator, filePrefix)
}

// bundledName returns the resource name of a bundled locator, e.g.
// "default_csv" for android.resource://csvtv/raw/default_csv.
func bundledName(locator string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(locator, bundledAndroidPrefix), bundledPrefix)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return path.Base(rest)
}
