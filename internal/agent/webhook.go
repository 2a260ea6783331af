package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// maxResponseBytes bounds how much of an agent response is read.
const maxResponseBytes = 4 << 20

// WebhookClient posts turns to an HTTP webhook.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewWebhookClient creates a webhook client. An empty url yields a client
// whose Configured method reports false.
func NewWebhookClient(url string, timeout time.Duration, log *logger.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Configured reports whether a webhook URL is set.
func (c *WebhookClient) Configured() bool {
	return c.url != ""
}

// Reply posts the request and resolves the reply text. Transport failures,
// timeouts and non-2xx statuses are returned as *model.UpstreamError.
func (c *WebhookClient) Reply(ctx context.Context, req *Request) (string, error) {
	if !c.Configured() {
		return "", model.Validationf("agent webhook url is not configured")
	}
	if req.History == nil {
		req.History = []HistoryTurn{}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &model.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &model.UpstreamError{Err: fmt.Errorf("read agent response: %w", err)}
	}

	if c.logger != nil {
		c.logger.Debug("agent responded",
			zap.Int("status", resp.StatusCode),
			zap.Int64("conversation_id", req.ConversationID),
			zap.Duration("latency", time.Since(start)),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &model.UpstreamError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("agent returned %s", resp.Status),
		}
	}

	return ResolveReply(body), nil
}
