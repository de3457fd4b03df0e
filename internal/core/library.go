package core

import "strconv"

// LibraryItem is one entry in the server's media library.
type LibraryItem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	Year           *int     `json:"year,omitempty"`
	UpdatedAt      string   `json:"updated_at"`
	RuntimeSeconds *float64 `json:"runtime_seconds,omitempty"`
}

// DisplayTitle returns "Title (Year)" when the year is known.
func (i LibraryItem) DisplayTitle() string {
	if i.Year == nil || *i.Year == 0 {
		return i.Title
	}
	return i.Title + " (" + strconv.Itoa(*i.Year) + ")"
}

// MediaFile is one playable file backing a library item.
type MediaFile struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	Container  string `json:"container,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	ScanState  string `json:"scan_state,omitempty"`
}

// LibraryDetail is a library item with its files and metadata.
type LibraryDetail struct {
	LibraryItem
	Description string      `json:"description,omitempty"`
	Genres      []string    `json:"genres,omitempty"`
	Files       []MediaFile `json:"files"`
}

// ClientCapabilities tells the server what this client can decode.
type ClientCapabilities struct {
	MaxResolution  string   `json:"max_resolution,omitempty"`
	MaxBitrateKbps int      `json:"max_bitrate_kbps,omitempty"`
	Containers     []string `json:"containers,omitempty"`
	VideoCodecs    []string `json:"video_codecs,omitempty"`
	AudioCodecs    []string `json:"audio_codecs,omitempty"`
}
