package services

import (
	"context"

	"github.com/rs/zerolog"
)

// Placeholder for the hub custodial-balance query. The hub exposes no contract for it yet.
type CustodialPoller struct {
	log zerolog.Logger
}

func NewCustodialPoller(log zerolog.Logger) *CustodialPoller {
	return &CustodialPoller{log: log.With().Str("component", "custodial").Logger()}
}

func (c *CustodialPoller) Poll(ctx context.Context) error {
	c.log.Trace().Msg("custodial balance check skipped")
	return nil
}
