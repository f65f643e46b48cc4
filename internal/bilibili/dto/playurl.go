package dto

import "encoding/json"

// PlayURLResponse is the response of /x/player/playurl.
type PlayURLResponse = Envelope[PlayURLData]

// PlayURLData is the stream manifest of one page.
type PlayURLData struct {
	Quality       int    `json:"quality"`
	AcceptQuality []int  `json:"accept_quality"`
	Dash          *Dash  `json:"dash"`
	Durl          []Durl `json:"durl"`
}

// Dash is the DASH-like section with separate video and audio representations.
type Dash struct {
	Duration int64            `json:"duration"`
	Video    []Representation `json:"video"`
	Audio    []Representation `json:"audio"`
	Dolby    *DolbyAudio      `json:"dolby"`
	Flac     *FlacAudio       `json:"flac"`
}

// DolbyAudio holds the Dolby Atmos tracks, if the video has any.
type DolbyAudio struct {
	Type  int              `json:"type"`
	Audio []Representation `json:"audio"`
}

// FlacAudio holds the lossless track, if the video has one.
type FlacAudio struct {
	Display bool            `json:"display"`
	Audio   *Representation `json:"audio"`
}

// Representation is one selectable stream.
type Representation struct {
	ID        int      `json:"id"`
	BaseURL   string   `json:"baseUrl"`
	BackupURL []string `json:"backupUrl"`
	Bandwidth int64    `json:"bandwidth"`
	CodecID   int      `json:"codecid"`
	Codecs    string   `json:"codecs"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FrameRate string   `json:"frameRate"`
}

// UnmarshalJSON accepts both the camelCase and snake_case spellings of the
// URL fields; the API has served both.
func (r *Representation) UnmarshalJSON(data []byte) error {
	type plain Representation
	var aux struct {
		plain
		BaseURLSnake   string   `json:"base_url"`
		BackupURLSnake []string `json:"backup_url"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Representation(aux.plain)
	if r.BaseURL == "" {
		r.BaseURL = aux.BaseURLSnake
	}
	if len(r.BackupURL) == 0 {
		r.BackupURL = aux.BackupURLSnake
	}
	return nil
}

// URL returns the primary URL, or the first backup if the primary is empty.
func (r Representation) URL() string {
	if r.BaseURL != "" {
		return r.BaseURL
	}
	for _, u := range r.BackupURL {
		if u != "" {
			return u
		}
	}
	return ""
}

// Durl is a progressive (muxed) segment, served for old or restricted videos.
// The resolver does not download these.
type Durl struct {
	Order int    `json:"order"`
	URL   string `json:"url"`
	Size  int64  `json:"size"`
}

// AudioTracks returns the eligible audio representations. Dolby and FLAC
// tracks are included only when extended is true.
func (d *Dash) AudioTracks(extended bool) []Representation {
	tracks := make([]Representation, 0, len(d.Audio)+2)
	tracks = append(tracks, d.Audio...)
	if !extended {
		return tracks
	}
	if d.Dolby != nil {
		tracks = append(tracks, d.Dolby.Audio...)
	}
	if d.Flac != nil && d.Flac.Audio != nil {
		tracks = append(tracks, *d.Flac.Audio)
	}
	return tracks
}
