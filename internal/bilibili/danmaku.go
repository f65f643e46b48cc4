package bilibili

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"

	"golang.org/x/net/html/charset"

	"github.com/handiism/bilibili-downloader/internal/model"
)

type danmakuList struct {
	XMLName xml.Name         `xml:"i"`
	Items   []danmakuElement `xml:"d"`
}

type danmakuElement struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

// FetchDanmaku downloads the full danmaku list of a page in one request.
//
// Elements whose p attribute cannot be parsed are skipped. The returned
// error wraps ErrSidecarUnavailable when the list could not be fetched or
// is not valid XML.
func (r *Resolver) FetchDanmaku(ctx context.Context, cid int64) ([]model.DanmakuRecord, error) {
	target := r.endpoints.Comment + "/" + strconv.FormatInt(cid, 10) + ".xml"
	resp := r.client.Fetch(ctx, target, nil)
	if resp == nil {
		return nil, fmt.Errorf("%w: danmaku request failed for cid %d", ErrSidecarUnavailable, cid)
	}

	records, skipped, err := ParseDanmaku(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: danmaku for cid %d: %v", ErrSidecarUnavailable, cid, err)
	}
	if skipped > 0 {
		r.logger.WithField("cid", cid).WithField("skipped", skipped).Debug("skipped malformed danmaku")
	}
	return records, nil
}

// ParseDanmaku decodes an XML danmaku list and reports how many elements
// were skipped because of malformed attributes.
func ParseDanmaku(data []byte) ([]model.DanmakuRecord, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	var list danmakuList
	if err := dec.Decode(&list); err != nil {
		return nil, 0, err
	}

	records := make([]model.DanmakuRecord, 0, len(list.Items))
	skipped := 0
	for _, item := range list.Items {
		rec, err := model.ParseDanmakuAttr(item.P, item.Text)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}
