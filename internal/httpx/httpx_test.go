package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func getReq(url string) func(context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestHTTPErrorDetail(t *testing.T) {
	err := &HTTPError{Method: "GET", URL: "https://x", StatusCode: 404, Body: []byte(`{"detail":"Course not found"}`)}
	assert.Equal(t, "Course not found", err.Detail())
	assert.Equal(t, "HTTP 错误: GET https://x status=404 body={\"detail\":\"Course not found\"}", err.Error())

	plain := &HTTPError{Body: []byte("  oops  ")}
	assert.Equal(t, "oops", plain.Detail())
}

func TestDoWithRetryRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	_, body, err := DoWithRetry(context.Background(), srv.Client(), getReq(srv.URL), fastRetry())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoWithRetryDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"bad"}`))
	}))
	defer srv.Close()

	_, _, err := DoWithRetry(context.Background(), srv.Client(), getReq(srv.URL), fastRetry())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNoRetrySingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := DoWithRetry(context.Background(), srv.Client(), getReq(srv.URL), NoRetry())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDecodesBrotliAndGzip(t *testing.T) {
	payload := []byte(`{"items":[1,2,3]}`)

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(payload)
	require.NoError(t, bw.Close())

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	require.NoError(t, gw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AcceptEncoding, r.Header.Get("Accept-Encoding"))
		switch r.URL.Path {
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			w.Write(br.Bytes())
		case "/gz":
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz.Bytes())
		}
	}))
	defer srv.Close()

	for _, p := range []string{"/br", "/gz"} {
		var out struct {
			Items []int `json:"items"`
		}
		err := DoJSON(context.Background(), srv.Client(), getReq(srv.URL+p), &out, fastRetry())
		require.NoError(t, err, p)
		assert.Equal(t, []int{1, 2, 3}, out.Items, p)
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), ParseRetryAfter(resp))

	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, ParseRetryAfter(resp))

	resp.Header.Set("Retry-After", "garbage")
	assert.Equal(t, time.Duration(0), ParseRetryAfter(resp))
}

func TestDoJSONEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var out map[string]any
	require.NoError(t, DoJSON(context.Background(), srv.Client(), getReq(srv.URL), &out, fastRetry()))
	assert.Nil(t, out)
}
