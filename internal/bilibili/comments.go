package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/handiism/bilibili-downloader/internal/bilibili/dto"
)

const (
	// MaxCommentPages is the hard cap on fetched comment pages.
	MaxCommentPages = 5

	commentPageSize = 20
)

// FetchComments collects raw top-level reply objects of a video, sorted by
// popularity, from at most maxPages pages (capped at MaxCommentPages).
// Fetching stops early at the first empty page.
//
// Any page that fails to load fails the whole sidecar with an error
// wrapping ErrSidecarUnavailable.
func (r *Resolver) FetchComments(ctx context.Context, aid int64, maxPages int) ([]json.RawMessage, error) {
	if maxPages < 1 || maxPages > MaxCommentPages {
		maxPages = MaxCommentPages
	}

	var all []json.RawMessage
	for page := 1; page <= maxPages; page++ {
		query := url.Values{}
		query.Set("type", "1")
		query.Set("oid", strconv.FormatInt(aid, 10))
		query.Set("pn", strconv.Itoa(page))
		query.Set("ps", strconv.Itoa(commentPageSize))
		query.Set("sort", "2")

		var resp dto.ReplyResponse
		if !r.client.GetJSON(ctx, r.endpoints.API+replyPath, query, &resp) {
			return nil, fmt.Errorf("%w: comments page %d request failed", ErrSidecarUnavailable, page)
		}
		if resp.Code == 0 && resp.Data == nil {
			break
		}
		data, err := resp.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("%w: comments page %d: %v", ErrSidecarUnavailable, page, err)
		}
		if len(data.Replies) == 0 {
			break
		}
		all = append(all, data.Replies...)
	}

	r.logger.WithField("aid", aid).WithField("count", len(all)).Debug("comments fetched")
	if all == nil {
		all = []json.RawMessage{}
	}
	return all, nil
}
