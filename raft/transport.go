package raft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/presbrey/qircd/echoprom"
)

const secretHeader = "X-Qircd-Secret"

// HTTPTransport speaks the consensus RPCs over HTTP/JSON. The same
// value serves both directions: client methods implement Transport,
// and Serve hosts the peer-facing endpoints plus /raft/status and
// /metrics.
type HTTPTransport struct {
	secret string
	client *http.Client
	echo   *echo.Echo
}

// NewHTTPTransport builds a transport authenticated by the cluster's
// shared secret.
func NewHTTPTransport(secret string) *HTTPTransport {
	return &HTTPTransport{
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Serve registers the consensus endpoints for node and blocks serving
// them on listen.
func (t *HTTPTransport) Serve(node *Node, listen string) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(echoprom.MiddlewareWithConfig(echoprom.Config{MetricsPort: 0}))

	auth := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if t.secret != "" && c.Request().Header.Get(secretHeader) != t.secret {
				return echo.NewHTTPError(http.StatusForbidden, "bad cluster secret")
			}
			return next(c)
		}
	}

	rg := e.Group("/raft", auth)
	rg.POST("/vote", func(c echo.Context) error {
		var req VoteRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, node.HandleRequestVote(&req))
	})
	rg.POST("/append", func(c echo.Context) error {
		var req AppendRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, node.HandleAppendEntries(&req))
	})
	rg.POST("/snapshot", func(c echo.Context) error {
		var req SnapshotRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, node.HandleInstallSnapshot(&req))
	})
	rg.POST("/propose", func(c echo.Context) error {
		var req ProposeRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, node.HandlePropose(&req))
	})
	e.GET("/raft/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, node.Status())
	})

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, echoprom.Registry}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	t.echo = e
	log.Printf("[raft %s] cluster listener on %s", node.cfg.ID, listen)
	return e.Start(listen)
}

// Shutdown stops the peer-facing HTTP server.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	if t.echo == nil {
		return nil
	}
	return t.echo.Shutdown(ctx)
}

func (t *HTTPTransport) post(ctx context.Context, peer Peer, path string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, peer.URL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.secret != "" {
		httpReq.Header.Set(secretHeader, t.secret)
	}
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer %s: %s returned %d", peer.ID, path, httpResp.StatusCode)
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func (t *HTTPTransport) RequestVote(ctx context.Context, peer Peer, req *VoteRequest) (*VoteResponse, error) {
	var resp VoteResponse
	if err := t.post(ctx, peer, "/raft/vote", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) AppendEntries(ctx context.Context, peer Peer, req *AppendRequest) (*AppendResponse, error) {
	var resp AppendResponse
	if err := t.post(ctx, peer, "/raft/append", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) InstallSnapshot(ctx context.Context, peer Peer, req *SnapshotRequest) (*SnapshotResponse, error) {
	var resp SnapshotResponse
	if err := t.post(ctx, peer, "/raft/snapshot", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) Propose(ctx context.Context, peer Peer, req *ProposeRequest) (*ProposeResponse, error) {
	var resp ProposeResponse
	if err := t.post(ctx, peer, "/raft/propose", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
