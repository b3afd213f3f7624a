package deviceadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

// HTTPAdapter POSTs apply-requests as JSON to a bridge endpoint.
type HTTPAdapter struct {
	endpoint string
	client   *http.Client
}

func NewHTTP(endpoint string) *HTTPAdapter {
	return &HTTPAdapter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (a *HTTPAdapter) Apply(ctx context.Context, req model.ApplyRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal apply request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send apply request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("device endpoint returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("device", req.DeviceID).
		Int("status", resp.StatusCode).
		Msg("Apply request delivered")

	return nil
}
