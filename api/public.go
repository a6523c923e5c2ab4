package api

import (
	"context"

	"github.com/MrEthical07/ctadmin/transport"
)

// PublicStatsPath serves anonymous per-status counts.
const PublicStatsPath = "/api/public/stats"

// PublicAPI calls the unauthenticated endpoints.
type PublicAPI struct {
	d transport.Dispatcher
}

// NewPublicAPI returns a PublicAPI sending through d.
func NewPublicAPI(d transport.Dispatcher) *PublicAPI {
	return &PublicAPI{d: d}
}

// Stats returns the public account counts.
func (p *PublicAPI) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := call(ctx, p.d, get(PublicStatsPath), &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}
