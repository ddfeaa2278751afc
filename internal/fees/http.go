package fees

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"flowledger/pkg/domain"
)

const defaultForwardTimeout = 5 * time.Second

// HTTPForwarder posts transfers to an external payment-channel endpoint.
// The channel settles asynchronously; a 2xx response means it accepted the
// transfer, anything else is a failure the caller is free to swallow.
type HTTPForwarder struct {
	url    string
	client *http.Client
}

func NewHTTPForwarder(url string) *HTTPForwarder {
	return &HTTPForwarder{
		url:    url,
		client: &http.Client{Timeout: defaultForwardTimeout},
	}
}

type forwardRequest struct {
	To        string `json:"to"`
	AmountWei string `json:"amount_wei"`
}

func (f *HTTPForwarder) Forward(ctx context.Context, to domain.Address, amountWei *big.Int) error {
	body, err := json.Marshal(forwardRequest{To: to.Hex(), AmountWei: amountWei.String()})
	if err != nil {
		return fmt.Errorf("marshal forward request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward to payment channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payment channel rejected transfer: status %d", resp.StatusCode)
	}
	return nil
}
