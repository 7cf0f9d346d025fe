package config

import (
	"encoding"
	"time"

	"github.com/nectarprotocol/nectar-go/build"
)

// Client is the configuration of a marketplace client.
type Client struct {
	// Network selects a built-in network bundle: moonbeam, moonbase or
	// localhost.
	Network string
	// RPCURL overrides the bundle's JSON-RPC endpoint.
	RPCURL string
	// APISecret is the hex private key of the client account. Prefer
	// setting it through NECTAR_API_SECRET.
	APISecret string
	// WorkerKey overrides the bundle's hex worker public key.
	WorkerKey string

	Addresses Addresses
	Tx        Tx
	Fees      Fees
	Query     Query
	Results   Results
	Journal   Journal
	Logging   Logging
}

// Addresses overrides the contract addresses of the network bundle.
type Addresses struct {
	USDC         string
	QueryManager string
	EoaBond      string
	UserRole     string

	// LegacyPolicyABI selects the policy registry ABI without identity
	// disclosure operations.
	LegacyPolicyABI bool
}

type Tx struct {
	// Maximum time to wait for a transaction receipt.
	ReceiptTimeout Duration
	// Time between transaction receipt lookups.
	ReceiptPoll Duration
	// Gas limit of submitted transactions. Estimated when zero.
	GasLimit uint64
}

type Fees struct {
	// When set, buckets that are missing or have no policies contribute a
	// zero price instead of failing price resolution.
	LenientMissingBuckets bool
}

type Query struct {
	// Allow computation steps that carry custom code.
	AllowCodeSteps bool
}

type Results struct {
	PollInterval Duration
	// Maximum time to wait for a query result. Zero waits until canceled.
	Deadline Duration
}

type Journal struct {
	// Directory of the on-disk query journal. The journal is kept in
	// memory when empty.
	Path string
}

type Logging struct {
	SubsystemLevels map[string]string
}

const (
	DefaultReceiptTimeout = 180 * time.Second
	DefaultReceiptPoll    = 5 * time.Second
	DefaultPollInterval   = 5 * time.Second
)

// DefaultClient returns the default config
func DefaultClient() *Client {
	return &Client{
		Network: build.DefaultNetwork,
		Tx: Tx{
			ReceiptTimeout: Duration(DefaultReceiptTimeout),
			ReceiptPoll:    Duration(DefaultReceiptPoll),
		},
		Results: Results{
			PollInterval: Duration(DefaultPollInterval),
		},
		Journal: Journal{
			Path: "~/.nectar/journal",
		},
		Logging: Logging{
			SubsystemLevels: map[string]string{},
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}

func (dur Duration) Std() time.Duration {
	return time.Duration(dur)
}
