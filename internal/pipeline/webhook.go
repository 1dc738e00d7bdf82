package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/agentloop/agentloop/internal/metrics"
)

const webhookTimeout = 10 * time.Second

type webhookPayload struct {
	Pipeline   string  `json:"pipeline"`
	RunID      string  `json:"run_id"`
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	Duration   float64 `json:"duration_s"`
}

// sendWebhook posts the run summary to the configured webhook URL. Delivery
// is best effort; failures are logged and otherwise ignored.
func (p *Pipeline) sendWebhook(rec *metrics.Recorder) {
	if p.notify != nil {
		p.notify(rec.RunID(), rec.Converged(), rec.Iterations(), rec.Duration())
		return
	}
	if p.settings.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(webhookPayload{
		Pipeline:   filepath.Base(p.root),
		RunID:      rec.RunID(),
		Converged:  rec.Converged(),
		Iterations: rec.Iterations(),
		Duration:   rec.Duration().Seconds(),
	})
	if err != nil {
		p.log.Warn("failed to encode webhook payload", "error", err)
		return
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(p.settings.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		p.log.Warn("webhook delivery failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.log.Warn("webhook rejected", "status", resp.StatusCode)
		return
	}
	p.log.Info("webhook delivered", "url", p.settings.WebhookURL)
}
