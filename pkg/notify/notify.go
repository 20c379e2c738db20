// Package notify carries the fire-and-forget alert channel for tier-1
// decisions. Dispatch failures are logged and never affect the audit write.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/model"
)

// Notifier delivers one alert for a decision record
type Notifier interface {
	Notify(ctx context.Context, record *model.DecisionRecord) error
}

// WriterNotifier writes human-readable alert lines to an io.Writer
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a WriterNotifier
func NewWriter(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(ctx context.Context, record *model.DecisionRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, err := fmt.Fprintf(n.w, "[ALERT] tier=%d patient=%s unit=%s: %s\n",
		record.Tier, record.PatientID, record.RecommendedUnit, record.Justification)
	if err != nil {
		return goerr.Wrap(err, "failed to write alert")
	}
	return nil
}

type alertPayload struct {
	PatientID string `json:"patient_id"`
	Tier      int    `json:"priority_tier"`
	Unit      string `json:"recommended_unit"`
	Message   string `json:"message"`
}

// WebhookNotifier POSTs alert payloads to an HTTP endpoint
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a WebhookNotifier for url
func NewWebhook(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, record *model.DecisionRecord) error {
	payload := alertPayload{
		PatientID: string(record.PatientID),
		Tier:      int(record.Tier),
		Unit:      record.RecommendedUnit,
		Message:   record.Justification,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal alert payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to build alert request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send alert", goerr.V("url", n.url))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return goerr.New("alert endpoint rejected request",
			goerr.V("url", n.url), goerr.V("status", resp.StatusCode))
	}
	return nil
}
