package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/five82/klaxon/internal/alarm"
)

// ErrNotFound is returned when the server has no such resource.
var ErrNotFound = errors.New("not found")

// API is the server surface the console uses. *Client implements it.
type API interface {
	GetAlarms(ctx context.Context) ([]alarm.Alarm, error)
	Acknowledge(ctx context.Context, id int64, sticky bool, timeout time.Duration) error
	ResolveAlarms(ctx context.Context, ids []int64) (map[int64]int, error)
	TerminateAlarms(ctx context.Context, ids []int64) (map[int64]int, error)
	DownloadFile(ctx context.Context, name string) ([]byte, error)
	ServerInfo(ctx context.Context) (ServerInfo, error)
	ObjectTree(ctx context.Context) (ObjectTreeResponse, error)
}

var _ API = (*Client)(nil)

// Client talks to the monitoring server's REST API.
type Client struct {
	baseURL *url.URL
	http    *resty.Client
}

const (
	defaultServer    = "127.0.0.1:8080"
	defaultUserAgent = "klaxon/0.1"
	requestTimeout   = 10 * time.Second
)

// NewClient builds a Client for a host:port or URL.
func NewClient(server string) (*Client, error) {
	base, err := parseBaseURL(server)
	if err != nil {
		return nil, err
	}
	r := resty.New().
		SetBaseURL(base.String()).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent)
	return &Client{baseURL: base, http: r}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// GetAlarms returns every alarm the server currently holds.
func (c *Client) GetAlarms(ctx context.Context) ([]alarm.Alarm, error) {
	var payload AlarmListResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/api/alarms")
	if err := check(resp, err, "get alarms"); err != nil {
		return nil, err
	}
	return payload.Alarms, nil
}

// Acknowledge acknowledges one alarm. A sticky acknowledgement with a
// positive timeout expires after that long.
func (c *Client) Acknowledge(ctx context.Context, id int64, sticky bool, timeout time.Duration) error {
	body := acknowledgeRequest{Sticky: sticky, Timeout: int64(timeout / time.Second)}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/api/alarms/" + strconv.FormatInt(id, 10) + "/acknowledge")
	return check(resp, err, fmt.Sprintf("acknowledge alarm %d", id))
}

// ResolveAlarms resolves ids and returns the per-id failure codes.
func (c *Client) ResolveAlarms(ctx context.Context, ids []int64) (map[int64]int, error) {
	return c.bulk(ctx, "/api/alarms/resolve", "resolve alarms", ids)
}

// TerminateAlarms terminates ids and returns the per-id failure codes.
func (c *Client) TerminateAlarms(ctx context.Context, ids []int64) (map[int64]int, error) {
	return c.bulk(ctx, "/api/alarms/terminate", "terminate alarms", ids)
}

func (c *Client) bulk(ctx context.Context, path, op string, ids []int64) (map[int64]int, error) {
	var payload BulkResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(bulkRequest{IDs: ids}).
		SetResult(&payload).
		Post(path)
	if err := check(resp, err, op); err != nil {
		return nil, err
	}
	if payload.Failures == nil {
		payload.Failures = map[int64]int{}
	}
	return payload.Failures, nil
}

// DownloadFile fetches a server-side file such as a sound asset.
func (c *Client) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("download file: empty name")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/octet-stream").
		Get("/api/files/" + url.PathEscape(name))
	if err := check(resp, err, "download "+name); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// ServerInfo returns the server policy flags.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var payload ServerInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/api/server")
	if err := check(resp, err, "get server info"); err != nil {
		return ServerInfo{}, err
	}
	return payload, nil
}

// ObjectTree returns the object tree and zones.
func (c *Client) ObjectTree(ctx context.Context) (ObjectTreeResponse, error) {
	var payload ObjectTreeResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/api/objects")
	if err := check(resp, err, "get object tree"); err != nil {
		return ObjectTreeResponse{}, err
	}
	return payload, nil
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	msg := strings.TrimSpace(resp.String())
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Errorf("%s: server returned status %d: %s", op, resp.StatusCode(), msg)
}

func parseBaseURL(server string) (*url.URL, error) {
	trimmed := strings.TrimSpace(server)
	if trimmed == "" {
		trimmed = defaultServer
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse server %q: missing host", server)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
