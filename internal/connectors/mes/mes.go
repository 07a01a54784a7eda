// Package mes provides the MES notifier over HTTP/JSON.
package mes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/icad/internal/connectors"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// MES message names.
const (
	MsgReceiveNewCassette  = "ReceiveNewCassette"
	MsgReturnEmptyCassette = "ReturnEmptyCassette"
)

// Config configures the MES client.
type Config struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Client implements connectors.MESNotifier.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new MES client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.Named("mes"),
		now:    time.Now,
	}
}

// Name returns the connector identifier.
func (c *Client) Name() string {
	return "mes"
}

// NotifyNewCassette sends ReceiveNewCassette.
func (c *Client) NotifyNewCassette(ctx context.Context, cstID, actor string) (connectors.MESResult, error) {
	return c.send(ctx, MsgReceiveNewCassette, cstID, actor)
}

// NotifyEmptied sends ReturnEmptyCassette.
func (c *Client) NotifyEmptied(ctx context.Context, cstID, actor string) (connectors.MESResult, error) {
	return c.send(ctx, MsgReturnEmptyCassette, cstID, actor)
}

type requestHeader struct {
	MessageName string `json:"message_name"`
	TID         string `json:"tid"`
	UserID      string `json:"user_id"`
	TimeStamp   string `json:"time_stamp"`
}

type requestBody struct {
	CassetteID string `json:"cst_id"`
}

type request struct {
	Header requestHeader `json:"header"`
	Body   requestBody   `json:"body"`
}

type reply struct {
	Body connectors.MESResult `json:"body"`
}

// send posts one message. Transport and HTTP failures are returned as
// errors. A malformed reply body decodes to an empty result.
func (c *Client) send(ctx context.Context, msgName, cstID, actor string) (connectors.MESResult, error) {
	req := request{
		Header: requestHeader{
			MessageName: msgName,
			TID:         uuid.New().String(),
			UserID:      actor,
			TimeStamp:   c.now().UTC().Format(time.RFC3339Nano),
		},
		Body: requestBody{CassetteID: cstID},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return connectors.MESResult{}, fmt.Errorf("marshal %s: %w", msgName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+msgName, bytes.NewReader(data))
	if err != nil {
		return connectors.MESResult{}, fmt.Errorf("build %s request: %w", msgName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return connectors.MESResult{}, fmt.Errorf("send %s: %w", msgName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return connectors.MESResult{}, fmt.Errorf("send %s: MES returned HTTP %d: %s", msgName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		c.logger.Warn("malformed MES reply", zap.String("message", msgName), zap.String("cst_id", cstID), zap.Error(err))
		return connectors.MESResult{}, nil
	}

	c.logger.Info("MES reply",
		zap.String("message", msgName),
		zap.String("cst_id", cstID),
		zap.String("status", r.Body.Status),
		zap.String("description", r.Body.Description),
	)
	return r.Body, nil
}
