package artifact

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MusicKind discriminates the two music artifact variants.
type MusicKind string

const (
	KindAlbum MusicKind = "album"
	KindTrack MusicKind = "track"
)

// Music is a tagged union of Album and Track. Exactly one of Album/Track is
// set, matching Kind. The upstream API spells the same concept with several
// alternative field names; normalization happens once here, at unmarshal
// time, so the rest of the codebase only ever sees the canonical fields.
type Music struct {
	Kind  MusicKind `json:"kind"`
	Album *Album    `json:"album,omitempty"`
	Track *Track    `json:"track,omitempty"`
}

// Album is a full-album recommendation.
type Album struct {
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	Year     int      `json:"year,omitempty"`
	CoverURL string   `json:"coverUrl,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Tracks   []Track  `json:"tracks,omitempty"`
}

// Track is a single-song recommendation, optionally anchored to an album.
type Track struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	DurationSec int    `json:"durationSec,omitempty"`
	Year        int    `json:"year,omitempty"`
}

func (m Music) clone() Music {
	out := Music{Kind: m.Kind}
	if m.Album != nil {
		album := *m.Album
		if album.Genres != nil {
			album.Genres = append([]string(nil), album.Genres...)
		}
		if album.Tracks != nil {
			album.Tracks = append([]Track(nil), album.Tracks...)
		}
		out.Album = &album
	}
	if m.Track != nil {
		track := *m.Track
		out.Track = &track
	}
	return out
}

// UnmarshalJSON tolerates the upstream API's aliased and missing fields
// instead of rejecting them. Discrimination order: an explicit type/kind
// marker wins, then the presence of a track list, then track fallback.
func (m *Music) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kind := strings.ToLower(rawString(raw, "kind", "type", "musicType"))
	hasTracks := hasKey(raw, "tracks", "songs")

	if kind == string(KindAlbum) || (kind == "" && hasTracks) {
		m.Kind = KindAlbum
		m.Album = albumFromRaw(raw)
		m.Track = nil
		return nil
	}

	m.Kind = KindTrack
	m.Track = trackFromRaw(raw)
	m.Album = nil
	return nil
}

func albumFromRaw(raw map[string]json.RawMessage) *Album {
	album := &Album{
		Title:    rawString(raw, "title", "name", "albumTitle"),
		Artist:   rawString(raw, "artist", "artistName", "by"),
		Year:     rawInt(raw, "year", "releaseYear"),
		CoverURL: rawString(raw, "coverUrl", "cover", "image", "artworkUrl"),
		Genres:   rawStrings(raw, "genres", "genre"),
	}
	for _, key := range []string{"tracks", "songs"} {
		data, ok := raw[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			continue
		}
		for _, item := range items {
			var trackRaw map[string]json.RawMessage
			if err := json.Unmarshal(item, &trackRaw); err != nil {
				// Some payloads list tracks as bare title strings.
				var title string
				if err := json.Unmarshal(item, &title); err == nil && title != "" {
					album.Tracks = append(album.Tracks, Track{Title: title})
				}
				continue
			}
			album.Tracks = append(album.Tracks, *trackFromRaw(trackRaw))
		}
		break
	}
	return album
}

func trackFromRaw(raw map[string]json.RawMessage) *Track {
	return &Track{
		Title:       rawString(raw, "title", "name", "trackTitle"),
		Artist:      rawString(raw, "artist", "artistName", "by"),
		Album:       rawString(raw, "album", "albumTitle", "albumName"),
		DurationSec: rawInt(raw, "durationSec", "duration", "durationSeconds", "length"),
		Year:        rawInt(raw, "year", "releaseYear"),
	}
}

func hasKey(raw map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	return false
}

// rawString returns the first present, non-empty string among the aliases.
func rawString(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		data, ok := raw[key]
		if !ok {
			continue
		}
		var val string
		if err := json.Unmarshal(data, &val); err == nil && val != "" {
			return val
		}
	}
	return ""
}

// rawInt accepts both JSON numbers and numeric strings, another upstream
// inconsistency.
func rawInt(raw map[string]json.RawMessage, keys ...string) int {
	for _, key := range keys {
		data, ok := raw[key]
		if !ok {
			continue
		}
		var num float64
		if err := json.Unmarshal(data, &num); err == nil {
			return int(num)
		}
		var str string
		if err := json.Unmarshal(data, &str); err == nil {
			if val, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
				return val
			}
		}
	}
	return 0
}

func rawStrings(raw map[string]json.RawMessage, keys ...string) []string {
	for _, key := range keys {
		data, ok := raw[key]
		if !ok {
			continue
		}
		var vals []string
		if err := json.Unmarshal(data, &vals); err == nil && len(vals) > 0 {
			return vals
		}
		var single string
		if err := json.Unmarshal(data, &single); err == nil && single != "" {
			return []string{single}
		}
	}
	return nil
}
