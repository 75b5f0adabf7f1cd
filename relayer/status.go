package relayer

import (
	"context"

	"github.com/crosslock/relay-go/scheduler"
)

// Status is the read-only operational view consumed by the http reporter.
type Status struct {
	Chains          []scheduler.ChainHealth `json:"chains"`
	SignerAddress   string                  `json:"signer_address"`
	SignerBalance   string                  `json:"signer_balance_wei"`
	RewardBalance   string                  `json:"reward_balance"`
	QueueDepth      int                     `json:"queue_depth"`
	QueuePaused     bool                    `json:"queue_paused"`
	EventsInFlight  int                     `json:"events_in_flight"`
	EventsPending   int64                   `json:"events_pending"`
	EventsProcessed int64                   `json:"events_processed"`
}

func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		SignerAddress:  c.wallet.SenderAddress().Hex(),
		QueueDepth:     c.queue.Depth(),
		QueuePaused:    c.queue.Paused(),
		EventsInFlight: c.InflightCount(),
	}

	if c.health != nil {
		st.Chains = c.health()
	}

	signerBalance, err := c.wallet.SignerBalance(ctx)
	if err != nil {
		return nil, err
	}
	st.SignerBalance = signerBalance.String()

	rewardBalance, err := c.wallet.RewardBalanceOf(ctx, c.wallet.SenderAddress())
	if err != nil {
		return nil, err
	}
	st.RewardBalance = rewardBalance.String()

	pending, err := c.ledger.CountPending()
	if err != nil {
		return nil, err
	}
	st.EventsPending = pending

	processed, err := c.ledger.CountProcessed()
	if err != nil {
		return nil, err
	}
	st.EventsProcessed = processed

	return st, nil
}
