package bilibili

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/handiism/bilibili-downloader/internal/bilibili/dto"
	"github.com/handiism/bilibili-downloader/internal/http"
	"github.com/handiism/bilibili-downloader/internal/model"
)

const (
	viewPath    = "/x/web-interface/view"
	playURLPath = "/x/player/playurl"
	replyPath   = "/x/v2/reply"

	// fnvalDASH requests DASH streams including HDR, 4K, Dolby and 8K.
	fnvalDASH = "4048"
)

// Transport is the subset of the HTTP client the resolver needs.
type Transport interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, out any) bool
	Fetch(ctx context.Context, rawURL string, query url.Values) *http.Response
}

// Endpoints holds the base URLs of the remote API.
type Endpoints struct {
	// API serves view, playurl and reply requests.
	API string

	// Comment serves danmaku XML lists.
	Comment string
}

// DefaultEndpoints returns the production base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		API:     "https://api.bilibili.com",
		Comment: "https://comment.bilibili.com",
	}
}

// Request describes the stream to resolve.
type Request struct {
	// ID is a BV id, an av id or a video page URL.
	ID string

	// Page is the 1-based page of a multi-part video. Zero means the page
	// in the URL, or 1.
	Page int

	Quality     model.Quality
	Codec       model.Codec
	Audio       model.AudioTier
	Credentials model.Credentials
}

// Metadata is the result of the metadata step alone.
type Metadata struct {
	ID      ContentID
	Title   model.TitleMetadata
	Content model.ContentMetadata
}

// Resolver turns a content id into a StreamDescriptor.
//
// Resolution takes two API calls: the view endpoint for the page's cid and
// titles, then the playurl endpoint for the DASH manifest. The resolver never
// downloads media; it only selects representations.
//
// Example usage:
//
//	resolver := bilibili.NewResolver(client, bilibili.DefaultEndpoints(), logger)
//
//	desc, err := resolver.Resolve(ctx, bilibili.Request{
//	    ID:      "BV1xx411c7mD",
//	    Quality: model.Quality1080P,
//	    Codec:   model.CodecAVC,
//	})
//	if errors.Is(err, bilibili.ErrFormatUnsupported) {
//	    // no DASH streams for this video
//	}
type Resolver struct {
	client    Transport
	endpoints Endpoints
	logger    logrus.FieldLogger
}

// NewResolver creates a Resolver using client for all requests.
func NewResolver(client Transport, endpoints Endpoints, logger logrus.FieldLogger) *Resolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		client:    client,
		endpoints: endpoints,
		logger:    logger,
	}
}

// Resolve fetches metadata and the manifest for req and selects streams.
//
// Returns an error wrapping:
//   - ErrInvalidID if req.ID cannot be parsed
//   - ErrMetadataUnavailable if the view call fails or the page does not exist
//   - ErrFormatUnsupported if the manifest has no DASH section or no video
func (r *Resolver) Resolve(ctx context.Context, req Request) (*model.StreamDescriptor, error) {
	meta, err := r.Metadata(ctx, req.ID, req.Page)
	if err != nil {
		return nil, err
	}

	ceiling := model.Ceiling(req.Quality, req.Credentials.Authorized())
	log := r.logger.WithFields(logrus.Fields{
		"id":      meta.ID.String(),
		"page":    meta.Content.Page,
		"ceiling": ceiling.Label(),
	})

	query := url.Values{}
	meta.ID.SetQuery(query, "avid")
	query.Set("cid", strconv.FormatInt(meta.Content.CID, 10))
	query.Set("qn", strconv.Itoa(int(ceiling)))
	query.Set("fnval", fnvalDASH)
	query.Set("fnver", "0")
	query.Set("fourk", "1")

	var resp dto.PlayURLResponse
	if !r.client.GetJSON(ctx, r.endpoints.API+playURLPath, query, &resp) {
		return nil, fmt.Errorf("%w: playurl request failed", ErrFormatUnsupported)
	}
	data, err := resp.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("%w: playurl: %v", ErrFormatUnsupported, err)
	}
	if data.Dash == nil {
		return nil, fmt.Errorf("%w: manifest has no dash section", ErrFormatUnsupported)
	}

	video, fallback, ok := SelectVideo(data.Dash.Video, ceiling, req.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: manifest has no video streams", ErrFormatUnsupported)
	}
	if fallback {
		log.WithField("quality", model.Quality(video.ID).Label()).
			Warn("no stream at or below the quality ceiling, using the lowest available")
	}

	audioURL := ""
	if audio, ok := SelectAudio(data.Dash, req.Audio); ok {
		audioURL = audio.URL()
	}

	quality := model.Quality(video.ID)
	log.WithFields(logrus.Fields{
		"quality": quality.Label(),
		"codec":   model.Codec(video.CodecID).String(),
		"audio":   audioURL != "",
	}).Debug("streams selected")

	return &model.StreamDescriptor{
		VideoURL:     video.URL(),
		AudioURL:     audioURL,
		Quality:      quality,
		QualityLabel: quality.Label(),
		Codec:        model.Codec(video.CodecID),
		Fallback:     fallback,
		Title:        meta.Title,
		Content:      meta.Content,
	}, nil
}

// Metadata fetches the view data for id and selects the page.
func (r *Resolver) Metadata(ctx context.Context, id string, page int) (*Metadata, error) {
	contentID, urlPage, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = urlPage
	}

	data, err := r.view(ctx, contentID)
	if err != nil {
		return nil, err
	}
	p, err := data.Page(page)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, contentID, err)
	}

	if data.BVID != "" {
		contentID = ContentID{BVID: data.BVID}
	}
	return &Metadata{
		ID:      contentID,
		Title:   data.ToTitle(p),
		Content: data.ToContent(p),
	}, nil
}

// Page is one part of a multi-part video.
type Page struct {
	Number   int
	Part     string
	Duration time.Duration
}

// Pages lists the parts of the video id refers to, in page order. A video
// without a page list has the single page 1. The page in a URL is ignored.
func (r *Resolver) Pages(ctx context.Context, id string) (ContentID, []Page, error) {
	contentID, _, err := ParseID(id)
	if err != nil {
		return ContentID{}, nil, err
	}
	data, err := r.view(ctx, contentID)
	if err != nil {
		return ContentID{}, nil, err
	}
	if data.BVID != "" {
		contentID = ContentID{BVID: data.BVID}
	}

	if len(data.Pages) == 0 {
		return contentID, []Page{{Number: 1, Part: data.Title, Duration: time.Duration(data.Duration) * time.Second}}, nil
	}
	pages := lo.Map(data.Pages, func(p dto.ViewPage, _ int) Page {
		return Page{Number: p.Page, Part: p.Part, Duration: time.Duration(p.Duration) * time.Second}
	})
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return contentID, pages, nil
}

func (r *Resolver) view(ctx context.Context, contentID ContentID) (*dto.ViewData, error) {
	query := url.Values{}
	contentID.SetQuery(query, "aid")

	var resp dto.ViewResponse
	if !r.client.GetJSON(ctx, r.endpoints.API+viewPath, query, &resp) {
		return nil, fmt.Errorf("%w: view request failed for %s", ErrMetadataUnavailable, contentID)
	}
	data, err := resp.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, contentID, err)
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, contentID, err)
	}
	return data, nil
}

// SelectVideo picks the best video representation not above ceiling.
//
// Representations are ranked by quality id; the highest id at or below the
// ceiling wins. Among representations sharing that id the preferred codec
// wins, otherwise the highest bandwidth. When no id is at or below the
// ceiling the lowest quality present is returned with fallback set to true.
// ok is false only when no representation has a URL.
func SelectVideo(videos []dto.Representation, ceiling model.Quality, codec model.Codec) (rep dto.Representation, fallback bool, ok bool) {
	usable := lo.Filter(videos, func(v dto.Representation, _ int) bool {
		return v.URL() != ""
	})
	if len(usable) == 0 {
		return dto.Representation{}, false, false
	}

	eligible := lo.Filter(usable, func(v dto.Representation, _ int) bool {
		return model.Quality(v.ID) <= ceiling
	})

	var target int
	if len(eligible) > 0 {
		target = lo.Max(lo.Map(eligible, func(v dto.Representation, _ int) int { return v.ID }))
	} else {
		fallback = true
		eligible = usable
		target = lo.Min(lo.Map(usable, func(v dto.Representation, _ int) int { return v.ID }))
	}

	candidates := lo.Filter(eligible, func(v dto.Representation, _ int) bool {
		return v.ID == target
	})
	preferred := lo.Filter(candidates, func(v dto.Representation, _ int) bool {
		return model.Codec(v.CodecID) == codec || codecMatches(v.Codecs, codec)
	})
	if len(preferred) > 0 {
		candidates = preferred
	}

	return highestBandwidth(candidates), fallback, true
}

// SelectAudio picks the highest-bandwidth audio representation eligible for tier.
func SelectAudio(dash *dto.Dash, tier model.AudioTier) (dto.Representation, bool) {
	if dash == nil {
		return dto.Representation{}, false
	}
	tracks := lo.Filter(dash.AudioTracks(tier == model.AudioBest), func(a dto.Representation, _ int) bool {
		return a.URL() != ""
	})
	if len(tracks) == 0 {
		return dto.Representation{}, false
	}
	return highestBandwidth(tracks), true
}

// AvailableQualities lists the distinct video quality ids of a manifest,
// highest first.
func AvailableQualities(videos []dto.Representation) []model.Quality {
	ids := lo.Uniq(lo.Map(videos, func(v dto.Representation, _ int) model.Quality {
		return model.Quality(v.ID)
	}))
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

func highestBandwidth(reps []dto.Representation) dto.Representation {
	return lo.MaxBy(reps, func(a, b dto.Representation) bool {
		return a.Bandwidth > b.Bandwidth
	})
}

// codecMatches checks the codecs string ("avc1.640032", "hev1.1.6.L150",
// "av01.0.08M.08") for entries whose codecid is missing.
func codecMatches(codecs string, codec model.Codec) bool {
	codecs = strings.ToLower(codecs)
	switch codec {
	case model.CodecAVC:
		return strings.HasPrefix(codecs, "avc")
	case model.CodecHEVC:
		return strings.HasPrefix(codecs, "hev") || strings.HasPrefix(codecs, "hvc")
	case model.CodecAV1:
		return strings.HasPrefix(codecs, "av01")
	}
	return false
}
