package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peerAddr strips the scheme from an httptest server URL so it can be
// used as a node ID.
func peerAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestPutSendsValueAndReturnsTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/internal/kv/user:42", r.URL.Path)

		var req PutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []byte("alice"), req.Value)

		json.NewEncoder(w).Encode(PutResponse{OK: true, Timestamp: 1234})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	ts, err := c.Put(context.Background(), peerAddr(srv), "user:42", []byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(1234), ts)
}

func TestPutRemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(PutResponse{Error: "disk full"})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	_, err := c.Put(context.Background(), peerAddr(srv), "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestGetFoundAndMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/present") {
			json.NewEncoder(w).Encode(GetResponse{OK: true, Found: true, Value: []byte("v"), Timestamp: 7})
			return
		}
		json.NewEncoder(w).Encode(GetResponse{OK: true, Found: false})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)

	res, err := c.Get(context.Background(), peerAddr(srv), "present")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []byte("v"), res.Value)
	assert.Equal(t, int64(7), res.Timestamp)

	res, err = c.Get(context.Background(), peerAddr(srv), "absent")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestKeyIsPathEscaped(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		json.NewEncoder(w).Encode(GetResponse{OK: true})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	_, err := c.Get(context.Background(), peerAddr(srv), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/internal/kv/"+url.PathEscape("a/b c"), gotPath)
}

func TestDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		json.NewEncoder(w).Encode(DeleteResponse{OK: true})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	assert.NoError(t, c.Delete(context.Background(), peerAddr(srv), "k"))
}

func TestAllMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/meta", r.URL.Path)
		json.NewEncoder(w).Encode(MetaResponse{OK: true, Meta: map[string]int64{"a": 1, "b": 2}})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	meta, err := c.AllMeta(context.Background(), peerAddr(srv))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a": 1, "b": 2}, meta)
}

func TestAllMetaEmptyBodyYieldsEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MetaResponse{OK: true})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	meta, err := c.AllMeta(context.Background(), peerAddr(srv))
	require.NoError(t, err)
	assert.NotNil(t, meta)
	assert.Empty(t, meta)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/ping", r.URL.Path)
		json.NewEncoder(w).Encode(PingResponse{OK: true})
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(time.Second)
	assert.NoError(t, c.Ping(context.Background(), peerAddr(srv)))
}

func TestPingUnreachablePeer(t *testing.T) {
	c := NewHTTPNodeClient(200 * time.Millisecond)
	err := c.Ping(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
}

func TestTimeoutIsEnforced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewHTTPNodeClient(100 * time.Millisecond)
	start := time.Now()
	_, err := c.Get(context.Background(), peerAddr(srv), "k")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
