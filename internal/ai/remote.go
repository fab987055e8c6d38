package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"botarena/internal/events"
	"botarena/internal/logger"
	"botarena/internal/pkg/jsonutil"
	"botarena/internal/pkg/text"
)

const maxResponseBytes = 1 << 20

// RemoteEvaluator posts the event and bot context to an HTTP endpoint and
// parses the first JSON object in the response body.
type RemoteEvaluator struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

var _ Evaluator = (*RemoteEvaluator)(nil)

func NewRemoteEvaluator(endpoint, apiKey string, timeout time.Duration) *RemoteEvaluator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEvaluator{
		Endpoint: strings.TrimSpace(endpoint),
		APIKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: timeout},
	}
}

type remoteRequest struct {
	Event   events.NewsEvent `json:"event"`
	Context BotContext       `json:"context"`
}

func (r *RemoteEvaluator) Evaluate(ctx context.Context, ev events.NewsEvent, bc BotContext) (*Decision, error) {
	body, err := json.Marshal(remoteRequest{Event: ev, Context: bc})
	if err != nil {
		return nil, fmt.Errorf("encode evaluate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", r.APIKey))
	}
	logger.Debugf("[AI] POST %s event=%s bot=%s", r.Endpoint, ev.ID, bc.BotID)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evaluate request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read evaluate response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("evaluate status=%d: %s", resp.StatusCode, text.Truncate(msg, 200))
	}
	logger.Debugf("[AI] response event=%s bot=%s:\n%s", ev.ID, bc.BotID, text.Truncate(jsonutil.Indent(string(raw)), 2000))
	d, err := ParseDecision(string(raw))
	if err != nil {
		return nil, err
	}
	if d != nil && d.Symbol == "" && len(ev.Symbols) == 1 {
		d.Symbol = strings.ToUpper(ev.Symbols[0])
	}
	return d, nil
}
