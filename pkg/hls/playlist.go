// Package hls extracts URIs from HLS master and media playlists.
package hls

import (
	"bufio"
	"strings"

	"github.com/grafov/m3u8"
)

// RenditionURIs returns the variant stream URIs of a master playlist in the
// order they appear.
func RenditionURIs(text string) []string {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err == nil && listType == m3u8.MASTER {
		if master, ok := playlist.(*m3u8.MasterPlaylist); ok {
			var uris []string
			for _, v := range master.Variants {
				if v == nil || v.URI == "" {
					continue
				}
				uris = append(uris, v.URI)
			}
			if len(uris) > 0 {
				return uris
			}
		}
	}
	return scanURIs(text)
}

// SegmentURIs returns the segment URIs of a media playlist in playback order.
func SegmentURIs(text string) []string {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err == nil && listType == m3u8.MEDIA {
		if media, ok := playlist.(*m3u8.MediaPlaylist); ok {
			var uris []string
			for _, seg := range media.Segments {
				if seg == nil {
					break
				}
				if seg.URI != "" {
					uris = append(uris, seg.URI)
				}
			}
			if len(uris) > 0 {
				return uris
			}
		}
	}
	return scanURIs(text)
}

// FirstWithPrefix returns the first URI starting with prefix.
func FirstWithPrefix(uris []string, prefix string) (string, bool) {
	for _, u := range uris {
		if strings.HasPrefix(u, prefix) {
			return u, true
		}
	}
	return "", false
}

// WithPrefix returns the URIs starting with prefix, keeping order and duplicates.
func WithPrefix(uris []string, prefix string) []string {
	var out []string
	for _, u := range uris {
		if strings.HasPrefix(u, prefix) {
			out = append(out, u)
		}
	}
	return out
}

// scanURIs treats every non-blank, non-tag line as a URI. Used for text the
// decoder rejects, such as bare URI lists without #EXTM3U.
func scanURIs(text string) []string {
	var uris []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uris = append(uris, line)
	}
	return uris
}
