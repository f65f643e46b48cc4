package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DanmakuRecord is one scrolling comment overlaid on the video.
type DanmakuRecord struct {
	// Time is the playback offset in seconds.
	Time float64 `json:"time"`

	// Mode is the display mode (1-3 scrolling, 4 bottom, 5 top, ...).
	Mode int `json:"mode"`

	FontSize int `json:"fontsize"`

	// Color is the decimal RGB color.
	Color int `json:"color"`

	// Timestamp is the unix time the comment was posted.
	Timestamp int64 `json:"timestamp"`

	Pool   int    `json:"pool"`
	UserID string `json:"userId"`
	DMID   string `json:"dmid"`
	Text   string `json:"text"`
}

// ParseDanmakuAttr builds a record from the comma separated p attribute
// "time,mode,size,color,timestamp,pool,uid,dmid" and the element text.
//
// Extra trailing fields (newer API revisions append a weight) are ignored.
func ParseDanmakuAttr(p, text string) (DanmakuRecord, error) {
	fields := strings.Split(p, ",")
	if len(fields) < 8 {
		return DanmakuRecord{}, fmt.Errorf("danmaku attribute has %d fields, want 8", len(fields))
	}

	t, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return DanmakuRecord{}, fmt.Errorf("danmaku time: %w", err)
	}
	ints := make([]int64, 4)
	for i, idx := range []int{1, 2, 3, 4} {
		ints[i], err = strconv.ParseInt(fields[idx], 10, 64)
		if err != nil {
			return DanmakuRecord{}, fmt.Errorf("danmaku field %d: %w", idx, err)
		}
	}
	pool, err := strconv.Atoi(fields[5])
	if err != nil {
		return DanmakuRecord{}, fmt.Errorf("danmaku pool: %w", err)
	}

	return DanmakuRecord{
		Time:      t,
		Mode:      int(ints[0]),
		FontSize:  int(ints[1]),
		Color:     int(ints[2]),
		Timestamp: ints[3],
		Pool:      pool,
		UserID:    fields[6],
		DMID:      fields[7],
		Text:      text,
	}, nil
}
