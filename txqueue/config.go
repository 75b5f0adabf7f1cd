package txqueue

import "time"

type Config struct {
	// Frequency to poll for the receipt of a submitted transaction
	ReceiptPollInterval time.Duration

	// Pause before retrying the head job after an insufficient-funds
	// failure; the operator needs time to top up the signer
	FundsCooldown time.Duration

	// Max submission attempts per job before it is abandoned
	MaxSubmitAttempts uint

	// Base delay of the exponential backoff between attempts
	RetryBaseDelay time.Duration
}

func (cfg *Config) withDefaults() *Config {
	out := *cfg
	if out.ReceiptPollInterval <= 0 {
		out.ReceiptPollInterval = 2 * time.Second
	}
	if out.FundsCooldown <= 0 {
		out.FundsCooldown = 30 * time.Second
	}
	if out.MaxSubmitAttempts == 0 {
		out.MaxSubmitAttempts = 5
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = 2 * time.Second
	}
	return &out
}
