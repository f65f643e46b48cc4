package bilibili

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	bvidPattern = regexp.MustCompile(`^(?i:BV)[0-9A-Za-z]{10}$`)
	avidPattern = regexp.MustCompile(`^(?i:av)?([0-9]+)$`)
	videoPath   = regexp.MustCompile(`/video/([^/?#]+)`)
)

// ContentID is a parsed video identifier.
type ContentID struct {
	// BVID is set for BV ids.
	BVID string

	// AID is set for av ids.
	AID int64
}

func (id ContentID) String() string {
	if id.BVID != "" {
		return id.BVID
	}
	return "av" + strconv.FormatInt(id.AID, 10)
}

// SetQuery sets the query parameter identifying the video. The av form is
// stored under aidKey, whose name differs between endpoints.
func (id ContentID) SetQuery(q url.Values, aidKey string) {
	if id.BVID != "" {
		q.Set("bvid", id.BVID)
		return
	}
	q.Set(aidKey, strconv.FormatInt(id.AID, 10))
}

// ParseID parses "BV1xx411c7mD", "av170001", "170001" or a video page URL
// such as "https://www.bilibili.com/video/BV1xx411c7mD?p=2".
//
// The returned page is the "p" query value of a URL, or 0 when absent.
func ParseID(input string) (ContentID, int, error) {
	input = strings.TrimSpace(input)
	page := 0

	if strings.Contains(input, "/") {
		u, err := url.Parse(input)
		if err != nil {
			return ContentID{}, 0, fmt.Errorf("%w: %q", ErrInvalidID, input)
		}
		if p, err := strconv.Atoi(u.Query().Get("p")); err == nil && p > 0 {
			page = p
		}
		m := videoPath.FindStringSubmatch(u.Path)
		if m == nil {
			return ContentID{}, 0, fmt.Errorf("%w: %q", ErrInvalidID, input)
		}
		input = m[1]
	}

	if bvidPattern.MatchString(input) {
		// The prefix is case sensitive on the API side.
		return ContentID{BVID: "BV" + input[2:]}, page, nil
	}
	if m := avidPattern.FindStringSubmatch(input); m != nil {
		aid, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && aid > 0 {
			return ContentID{AID: aid}, page, nil
		}
	}
	return ContentID{}, 0, fmt.Errorf("%w: %q", ErrInvalidID, input)
}
