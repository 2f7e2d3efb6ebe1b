package pydio

import (
	"bytes"
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

// DefaultTimeout bounds every request when the job does not configure one.
const DefaultTimeout = 20 * time.Second

// retryMax bounds the exponential backoff applied to transient failures on
// idempotent requests.
const retryMax = 3

// Config identifies a remote workspace and how to reach it.
type Config struct {
	// Server is the base URL of the Pydio server.
	Server string
	// Workspace is the remote workspace id.
	Workspace string
	// RemoteFolder is the folder inside the workspace to sync against;
	// empty means the workspace root.
	RemoteFolder string
	// UserID and DeviceID identify this client to the server.
	UserID   string
	DeviceID string
	// TrustSSL skips TLS certificate verification.
	TrustSSL bool
	// Proxies is an optional list of proxy URLs; the first one is used.
	Proxies []string
	// Timeout is the per-request bound, DefaultTimeout when zero.
	Timeout time.Duration
}

// Client is a thin SDK over the Pydio HTTP API: a health probe, the change
// feed, and the whole-file mutation surface the merge applier needs.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger zerolog.Logger
}

// NewClient validates the configuration and builds the HTTP client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.Server, err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TrustSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if len(cfg.Proxies) > 0 {
		proxy, err := url.Parse(cfg.Proxies[0])
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.Proxies[0], err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: log.WithComponent("pydio"),
	}, nil
}

// Server returns the configured base URL, for logging.
func (c *Client) Server() string {
	return c.cfg.Server
}

// Health probes the server. A reachable server in a consistent state
// answers 2xx.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.request(ctx, http.MethodGet, "/api/v2/health", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return types.TransportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.TransportFailure(fmt.Errorf("health probe: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	return nil
}

// changeRecord is the wire shape of one change feed entry.
type changeRecord struct {
	Seq    int64  `json:"seq"`
	NodeID *int64 `json:"node_id"`
	Type   string `json:"type"`
	Source string `json:"source"`
	Target string `json:"target"`
	Node   *struct {
		Path     string  `json:"node_path"`
		Bytesize int64   `json:"bytesize"`
		MD5      string  `json:"md5"`
		MTime    float64 `json:"mtime"`
	} `json:"node"`
}

// Changes fetches the remote change feed after the given sequence, mapped
// into the core change shape. Transport errors and 5xx answers are retried
// with exponential backoff, at most retryMax times and while ctx is live;
// the client timeout bounds each attempt, not the whole retry sequence.
func (c *Client) Changes(ctx context.Context, since int64) ([]types.Change, error) {
	query := url.Values{
		"seq":    {strconv.FormatInt(since, 10)},
		"folder": {c.cfg.RemoteFolder},
		"user":   {c.cfg.UserID},
		"device": {c.cfg.DeviceID},
	}

	var records []changeRecord
	operation := func() error {
		req, err := c.request(ctx, http.MethodGet, path.Join("/api/v2/changes", c.cfg.Workspace), query, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("change feed: HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("change feed: HTTP %d", resp.StatusCode))
		}
		records = records[:0]
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			return backoff.Permanent(fmt.Errorf("change feed decode: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retryMax), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, types.TransportFailure(err)
	}

	changes := make([]types.Change, 0, len(records))
	for _, r := range records {
		ch := types.Change{
			Seq:    r.Seq,
			Type:   types.ChangeType(r.Type),
			Source: r.Source,
			Target: r.Target,
		}
		if r.NodeID != nil {
			ch.NodeID = sql.NullInt64{Int64: *r.NodeID, Valid: true}
		}
		if r.Node != nil {
			ch.Node = &types.Inode{
				NodePath: r.Node.Path,
				Bytesize: r.Node.Bytesize,
				MD5:      r.Node.MD5,
				MTime:    r.Node.MTime,
			}
		}
		changes = append(changes, ch)
	}
	return changes, nil
}

// Download streams the contents of a remote file.
func (c *Client) Download(ctx context.Context, nodePath string) (io.ReadCloser, error) {
	req, err := c.request(ctx, http.MethodGet, c.ioPath(nodePath), nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.TransportFailure(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, types.TransportFailure(fmt.Errorf("download %s: HTTP %d", nodePath, resp.StatusCode))
	}
	return resp.Body, nil
}

// Upload replaces the contents of a remote file.
func (c *Client) Upload(ctx context.Context, nodePath string, content io.Reader) error {
	req, err := c.request(ctx, http.MethodPut, c.ioPath(nodePath), nil, content)
	if err != nil {
		return err
	}
	return c.expect2xx(req, "upload "+nodePath)
}

// Mkdir creates a remote directory, including missing parents.
func (c *Client) Mkdir(ctx context.Context, nodePath string) error {
	req, err := c.request(ctx, http.MethodPost, c.ioPath(nodePath), url.Values{"mkdir": {"true"}}, nil)
	if err != nil {
		return err
	}
	return c.expect2xx(req, "mkdir "+nodePath)
}

// Delete removes a remote file or directory subtree.
func (c *Client) Delete(ctx context.Context, nodePath string) error {
	req, err := c.request(ctx, http.MethodDelete, c.ioPath(nodePath), nil, nil)
	if err != nil {
		return err
	}
	return c.expect2xx(req, "delete "+nodePath)
}

// Move renames a remote node.
func (c *Client) Move(ctx context.Context, source, target string) error {
	body, err := json.Marshal(map[string]string{"source": source, "target": target})
	if err != nil {
		return err
	}
	req, err := c.request(ctx, http.MethodPost, path.Join("/api/v2/move", c.cfg.Workspace), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.expect2xx(req, fmt.Sprintf("move %s -> %s", source, target))
}

// ioPath addresses one node inside the configured workspace and folder.
// Paths stay unescaped here; url.URL handles encoding when the request is
// built.
func (c *Client) ioPath(nodePath string) string {
	return path.Join("/api/v2/io", c.cfg.Workspace, c.cfg.RemoteFolder, nodePath)
}

func (c *Client) request(ctx context.Context, method, p string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.base
	u.Path = path.Join(u.Path, p)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Pydio-User", c.cfg.UserID)
	req.Header.Set("X-Pydio-Device", c.cfg.DeviceID)
	return req, nil
}

func (c *Client) expect2xx(req *http.Request, what string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return types.TransportFailure(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.TransportFailure(fmt.Errorf("%s: HTTP %d", what, resp.StatusCode))
	}
	return nil
}

