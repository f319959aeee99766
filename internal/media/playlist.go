package media

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrParse marks a channel list that could not be parsed. No records are
// returned alongside it.
var ErrParse = errors.New("parse error")

const (
	columnTitle     = "title"
	columnURL       = "url"
	columnThumbnail = "thumbnailUrl"
	columnGroup     = "groupName"
)

var extinfTitle = regexp.MustCompile(`.*,(.*)$`)

// Parse decodes a channel list, choosing M3U when the locator names an M3U
// file or the body starts with #EXTM3U, and CSV otherwise.
func Parse(data []byte, locator string) ([]Channel, error) {
	if IsPlaylistPath(locator) || LooksLikeM3U(data) {
		return ParseM3U(bytes.NewReader(data))
	}
	return ParseCSV(bytes.NewReader(data))
}

// LooksLikeM3U reports whether the body starts with the #EXTM3U marker.
func LooksLikeM3U(data []byte) bool {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	return strings.HasPrefix(strings.TrimSpace(text), "#EXTM3U")
}

// ParseCSV reads a channel list with a header row naming title, url and
// groupName (exact, case-sensitive) and an optional thumbnailUrl column.
// Rows without a title or url are skipped.
func ParseCSV(r io.Reader) ([]Channel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid CSV format: empty file", ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing CSV: %v", ErrParse, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	titleIdx := indexOf(header, columnTitle)
	urlIdx := indexOf(header, columnURL)
	thumbIdx := indexOf(header, columnThumbnail)
	groupIdx := indexOf(header, columnGroup)
	if titleIdx < 0 || urlIdx < 0 || groupIdx < 0 {
		return nil, fmt.Errorf("%w: invalid CSV format: missing required columns (title, url, groupName)", ErrParse)
	}

	channels := make([]Channel, 0)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: error parsing CSV: %v", ErrParse, err)
		}

		title := strings.TrimSpace(cell(row, titleIdx))
		url := strings.TrimSpace(cell(row, urlIdx))
		if title == "" || url == "" {
			continue
		}
		group := strings.TrimSpace(cell(row, groupIdx))
		if group == "" {
			group = DefaultGroup
		}
		ch := Channel{Title: title, URL: url, Group: group}
		if thumbIdx >= 0 {
			ch.ThumbnailURL = strings.TrimSpace(cell(row, thumbIdx))
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// ParseM3U reads an extended M3U playlist. Each #EXTINF title applies to the
// next non-comment line; every entry lands in the M3U Streams group.
func ParseM3U(r io.Reader) ([]Channel, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	channels := make([]Channel, 0)
	var title string
	pending := false
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#EXTM3U") {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF") {
			title = UnnamedStream
			if m := extinfTitle.FindStringSubmatch(line); m != nil {
				title = m[1]
			}
			pending = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if pending {
			channels = append(channels, Channel{Title: title, URL: line, Group: M3UGroup})
			pending = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: error parsing M3U: %v", ErrParse, err)
	}
	return channels, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
