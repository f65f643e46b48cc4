package dto

import (
	"fmt"
	"time"

	"github.com/handiism/bilibili-downloader/internal/model"
)

// ViewResponse is the response of /x/web-interface/view.
type ViewResponse = Envelope[ViewData]

// ViewData is the content metadata of one video.
type ViewData struct {
	BVID     string     `json:"bvid"`
	AID      int64      `json:"aid"`
	CID      int64      `json:"cid"`
	Title    string     `json:"title"`
	Desc     string     `json:"desc"`
	Pic      string     `json:"pic"`
	Duration int64      `json:"duration"`
	PubDate  int64      `json:"pubdate"`
	Owner    ViewOwner  `json:"owner"`
	Pages    []ViewPage `json:"pages"`
}

// ViewOwner is the uploader of a video.
type ViewOwner struct {
	MID  int64  `json:"mid"`
	Name string `json:"name"`
}

// ViewPage is one part of a multi-part video.
type ViewPage struct {
	CID      int64  `json:"cid"`
	Page     int    `json:"page"`
	Part     string `json:"part"`
	Duration int64  `json:"duration"`
}

// Validate checks the fields the resolver depends on.
func (v *ViewData) Validate() error {
	if v.CID <= 0 && len(v.Pages) == 0 {
		return fmt.Errorf("view data has no cid")
	}
	if v.BVID == "" && v.AID <= 0 {
		return fmt.Errorf("view data has no content id")
	}
	return nil
}

// Page returns the requested 1-based page, or an error when it does not exist.
// A video without a page list is treated as a single page using the top level cid.
func (v *ViewData) Page(n int) (ViewPage, error) {
	if n < 1 {
		n = 1
	}
	if len(v.Pages) == 0 {
		if n != 1 {
			return ViewPage{}, fmt.Errorf("page %d out of range, video has 1 page", n)
		}
		return ViewPage{CID: v.CID, Page: 1, Part: v.Title, Duration: v.Duration}, nil
	}
	for _, p := range v.Pages {
		if p.Page == n {
			if p.CID <= 0 {
				return ViewPage{}, fmt.Errorf("page %d has no cid", n)
			}
			return p, nil
		}
	}
	return ViewPage{}, fmt.Errorf("page %d out of range, video has %d pages", n, len(v.Pages))
}

// ToTitle converts the view data and selected page to TitleMetadata.
func (v *ViewData) ToTitle(page ViewPage) model.TitleMetadata {
	part := ""
	if len(v.Pages) > 1 {
		part = page.Part
	}
	return model.TitleMetadata{
		Title: v.Title,
		Part:  part,
		Owner: v.Owner.Name,
	}
}

// ToContent converts the view data and selected page to ContentMetadata.
func (v *ViewData) ToContent(page ViewPage) model.ContentMetadata {
	duration := page.Duration
	if duration <= 0 {
		duration = v.Duration
	}
	var pub time.Time
	if v.PubDate > 0 {
		pub = time.Unix(v.PubDate, 0).UTC()
	}
	return model.ContentMetadata{
		BVID:        v.BVID,
		AID:         v.AID,
		CID:         page.CID,
		Page:        page.Page,
		Duration:    time.Duration(duration) * time.Second,
		CoverURL:    normalizeURL(v.Pic),
		Description: v.Desc,
		PubDate:     pub,
	}
}

// normalizeURL upgrades protocol-relative and plain http cover URLs.
func normalizeURL(u string) string {
	switch {
	case len(u) > 2 && u[:2] == "//":
		return "https:" + u
	case len(u) > 7 && u[:7] == "http://":
		return "https://" + u[7:]
	}
	return u
}
