package dto

import "encoding/json"

// ReplyResponse is one page of /x/v2/reply.
type ReplyResponse = Envelope[ReplyPage]

// ReplyPage keeps reply objects raw; they are persisted as served.
type ReplyPage struct {
	Page    ReplyCursor       `json:"page"`
	Replies []json.RawMessage `json:"replies"`
}

// ReplyCursor is the paging information of a reply page.
type ReplyCursor struct {
	Num   int `json:"num"`
	Size  int `json:"size"`
	Count int `json:"count"`
}
