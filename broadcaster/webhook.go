package broadcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/energywebfoundation/worker-contract-sub000/events"
)

// Webhook posts records as a JSON array to an HTTP endpoint.
type Webhook struct {
	target *url.URL
	client *http.Client
}

var _ Sink = (*Webhook)(nil)

func NewWebhook(target string) (*Webhook, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing webhook address: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	return &Webhook{target: u, client: &http.Client{}}, nil
}

func (w *Webhook) Target() string {
	return w.target.String()
}

func (w *Webhook) Publish(ctx context.Context, records []events.Record) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling records: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("unexpected response: status code: %s, body: %s", res.Status, string(data))
	}
	return nil
}
