package pydio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Server:    srv.URL,
		Workspace: "ws",
		UserID:    "alice",
		DeviceID:  "dev-1",
	})
	require.NoError(t, err)
	return c, srv
}

func TestHealthOK(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/health", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get("X-Pydio-User"))
		w.WriteHeader(http.StatusOK)
	}))

	assert.NoError(t, c.Health(context.Background()))
}

func TestHealthFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	assert.Error(t, c.Health(context.Background()))
}

func TestHealthUnreachable(t *testing.T) {
	c, err := NewClient(Config{Server: "http://127.0.0.1:1", Workspace: "ws"})
	require.NoError(t, err)

	err = c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransportFailure)
}

func TestChangesMapsRecords(t *testing.T) {
	nodeID := int64(7)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/changes/ws", r.URL.Path)
		assert.Equal(t, "41", r.URL.Query().Get("seq"))
		assert.Equal(t, "alice", r.URL.Query().Get("user"))
		assert.Equal(t, "dev-1", r.URL.Query().Get("device"))

		json.NewEncoder(w).Encode([]changeRecord{
			{
				Seq: 42, NodeID: &nodeID, Type: "create", Target: "docs/a.txt",
				Node: &struct {
					Path     string  `json:"node_path"`
					Bytesize int64   `json:"bytesize"`
					MD5      string  `json:"md5"`
					MTime    float64 `json:"mtime"`
				}{Path: "docs/a.txt", Bytesize: 5, MD5: "abc", MTime: 1000},
			},
			{Seq: 43, Type: "delete", Source: "docs/b.txt"},
		})
	}))

	changes, err := c.Changes(context.Background(), 41)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.EqualValues(t, 42, changes[0].Seq)
	assert.Equal(t, types.ChangeCreate, changes[0].Type)
	assert.Equal(t, "docs/a.txt", changes[0].Target)
	require.NotNil(t, changes[0].Node)
	assert.Equal(t, "abc", changes[0].Node.MD5)
	assert.True(t, changes[0].NodeID.Valid)

	assert.Equal(t, types.ChangeDelete, changes[1].Type)
	assert.Nil(t, changes[1].Node)
	assert.False(t, changes[1].NodeID.Valid)
}

func TestChangesRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("[]"))
	}))

	changes, err := c.Changes(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.EqualValues(t, 2, calls.Load())
}

func TestChangesClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.Changes(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransportFailure)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestUploadAndDownload(t *testing.T) {
	content := map[string][]byte{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			content[r.URL.Path] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			body, ok := content[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
		}
	}))

	ctx := context.Background()
	require.NoError(t, c.Upload(ctx, "docs/a.txt", strings.NewReader("hello")))

	// the node path lives under the workspace io prefix
	require.Contains(t, content, "/api/v2/io/ws/docs/a.txt")
	assert.Equal(t, "hello", string(content["/api/v2/io/ws/docs/a.txt"]))

	rc, err := c.Download(ctx, "docs/a.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestDownloadMissing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Download(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransportFailure)
}

func TestMkdirDeleteMove(t *testing.T) {
	type call struct{ method, path, query string }
	var calls []call
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery})
		if r.Method == http.MethodPost && r.URL.Path == "/api/v2/move/ws" {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "old.txt", body["source"])
			assert.Equal(t, "new.txt", body["target"])
		}
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.Background()
	require.NoError(t, c.Mkdir(ctx, "docs"))
	require.NoError(t, c.Delete(ctx, "docs/a.txt"))
	require.NoError(t, c.Move(ctx, "old.txt", "new.txt"))

	require.Len(t, calls, 3)
	assert.Equal(t, call{"POST", "/api/v2/io/ws/docs", "mkdir=true"}, calls[0])
	assert.Equal(t, call{"DELETE", "/api/v2/io/ws/docs/a.txt", ""}, calls[1])
	assert.Equal(t, "/api/v2/move/ws", calls[2].path)
}

func TestTrustSSL(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	strict, err := NewClient(Config{Server: srv.URL, Workspace: "ws"})
	require.NoError(t, err)
	assert.Error(t, strict.Health(context.Background()), "self-signed cert must fail without trust_ssl")

	trusting, err := NewClient(Config{Server: srv.URL, Workspace: "ws", TrustSSL: true})
	require.NoError(t, err)
	assert.NoError(t, trusting.Health(context.Background()))
}
