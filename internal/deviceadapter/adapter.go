// Package deviceadapter carries apply-requests to the downstream climate
// device. Adapters own transport and timeouts; the controller treats every
// Apply as fire-and-forget and only logs failures.
package deviceadapter

import (
	"context"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

type Adapter interface {
	Apply(ctx context.Context, req model.ApplyRequest) error
}
