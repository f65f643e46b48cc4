package bilibili

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

const danmakuXML = `<?xml version="1.0" encoding="UTF-8"?>
<i>
	<chatserver>chat.bilibili.com</chatserver>
	<d p="1.5,1,25,16777215,1700000000,0,abc,100,10">first</d>
	<d p="broken">skipped</d>
	<d p="90.25,5,18,255,1700000100,1,def,101">second &amp; last</d>
</i>`

func TestFetchDanmaku_Deflated(t *testing.T) {
	var compressed bytes.Buffer
	fw, _ := flate.NewWriter(&compressed, flate.BestSpeed)
	fw.Write([]byte(danmakuXML))
	fw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1001.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Encoding", "deflate")
		w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	records, err := newTestResolver(t, srv).FetchDanmaku(context.Background(), 1001)
	if err != nil {
		t.Fatalf("FetchDanmaku: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Text != "first" || records[0].Time != 1.5 || records[0].DMID != "100" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Text != "second & last" || records[1].Mode != 5 || records[1].Pool != 1 {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestFetchDanmaku_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestResolver(t, srv).FetchDanmaku(context.Background(), 1)
	if !errors.Is(err, ErrSidecarUnavailable) {
		t.Errorf("error = %v, want ErrSidecarUnavailable", err)
	}
}

func TestParseDanmaku_InvalidXML(t *testing.T) {
	if _, _, err := ParseDanmaku([]byte("not xml at all")); err == nil {
		t.Error("expected error for non-XML body")
	}
}

func TestFetchComments(t *testing.T) {
	tests := []struct {
		name      string
		pages     int
		maxPages  int
		wantCount int
		wantCalls int32
	}{
		{"stops at empty page", 2, 5, 4, 3},
		{"respects page limit", 10, 3, 6, 3},
		{"hard cap", 10, 50, 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				q := r.URL.Query()
				if r.URL.Path != replyPath || q.Get("oid") != "170001" || q.Get("type") != "1" || q.Get("sort") != "2" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				pn, _ := strconv.Atoi(q.Get("pn"))
				if pn > tt.pages {
					w.Write([]byte(`{"code":0,"data":{"page":{"num":1},"replies":[]}}`))
					return
				}
				fmt.Fprintf(w, `{"code":0,"data":{"replies":[{"rpid":%d1},{"rpid":%d2}]}}`, pn, pn)
			}))
			defer srv.Close()

			replies, err := newTestResolver(t, srv).FetchComments(context.Background(), 170001, tt.maxPages)
			if err != nil {
				t.Fatalf("FetchComments: %v", err)
			}
			if len(replies) != tt.wantCount {
				t.Errorf("len(replies) = %d, want %d", len(replies), tt.wantCount)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestFetchComments_PageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pn") == "2" {
			w.Write([]byte(`{"code":12002,"message":"comments closed"}`))
			return
		}
		w.Write([]byte(`{"code":0,"data":{"replies":[{"rpid":1}]}}`))
	}))
	defer srv.Close()

	_, err := newTestResolver(t, srv).FetchComments(context.Background(), 1, 5)
	if !errors.Is(err, ErrSidecarUnavailable) {
		t.Errorf("error = %v, want ErrSidecarUnavailable", err)
	}
}
