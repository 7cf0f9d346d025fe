package kit

import (
	"time"
)

type EnsembleOpt func(opts *ensembleOpts) error

type ensembleOpts struct {
	legacyPolicyABI bool
	receiptPoll     time.Duration
	pollInterval    time.Duration
	timeout         time.Duration
}

var DefaultEnsembleOpts = ensembleOpts{
	receiptPoll:  10 * time.Millisecond,
	pollInterval: 20 * time.Millisecond,
	timeout:      30 * time.Second,
}

// LegacyPolicyABI deploys the policy registry without identity disclosure
// operations, and configures clients for it.
func LegacyPolicyABI() EnsembleOpt {
	return func(opts *ensembleOpts) error {
		opts.legacyPolicyABI = true
		return nil
	}
}

// PollInterval sets how often clients read result slots.
func PollInterval(d time.Duration) EnsembleOpt {
	return func(opts *ensembleOpts) error {
		opts.pollInterval = d
		return nil
	}
}

// Timeout bounds the context returned by Ensemble.Context.
func Timeout(d time.Duration) EnsembleOpt {
	return func(opts *ensembleOpts) error {
		opts.timeout = d
		return nil
	}
}
