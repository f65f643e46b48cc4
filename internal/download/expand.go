package download

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/handiism/bilibili-downloader/internal/bilibili"
	bhttp "github.com/handiism/bilibili-downloader/internal/http"
)

// ExpandPages replaces every request without an explicit Page by one request
// per page of its video, in page order.
//
// Listing costs one view call per request. A request whose listing fails is
// kept as it is so that its job reports the failure. Expanded requests drop
// the caller supplied Title, since one title cannot name several directories.
func (m *Manager) ExpandPages(ctx context.Context, reqs []Request) []Request {
	var out []Request
	for _, req := range reqs {
		if req.Page > 0 {
			out = append(out, req)
			continue
		}

		log := m.logger.WithField("id", req.ID)
		client := bhttp.NewClient(m.settings.ToClientConfig(), append([]bhttp.Option{
			bhttp.WithCredentials(req.Credentials),
			bhttp.WithLogger(log),
		}, m.clientOptions...)...)

		id, pages, err := bilibili.NewResolver(client, m.endpoints, log).Pages(ctx, req.ID)
		if err != nil {
			log.WithError(err).Warn("listing pages failed")
			out = append(out, req)
			continue
		}
		if len(pages) > 1 {
			m.notify(Notice{Message: fmt.Sprintf("%s has %d pages", id, len(pages)), Level: LevelInfo})
		}

		for _, p := range pages {
			expanded := req
			expanded.ID = id.String()
			expanded.Page = p.Number
			if len(pages) > 1 {
				expanded.Title = ""
			}
			out = append(out, expanded)
		}
		log.WithFields(logrus.Fields{"pages": len(pages)}).Debug("pages listed")
	}
	return out
}
