package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NECTAR"

// FromFile loads config from a specified file overriding defaults specified in
// the def parameter. If file does not exist or is empty defaults are assumed.
// Environment overrides are applied last.
func FromFile(path string, def *Client) (*Client, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding config path: %w", err)
	}

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		if def == nil {
			def = DefaultClient()
		}
		return def, ApplyEnv(def)
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck // The file is RO
	return FromReader(file, def)
}

// FromReader loads config from a reader instance.
func FromReader(reader io.Reader, def *Client) (*Client, error) {
	cfg := def
	if cfg == nil {
		cfg = DefaultClient()
	}
	if _, err := toml.NewDecoder(reader).Decode(cfg); err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Seconds decodes an environment value given in whole seconds. Go duration
// strings are accepted too.
type Seconds time.Duration

func (s *Seconds) Decode(value string) error {
	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		*s = Seconds(time.Duration(n) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return xerrors.Errorf("expected seconds, got %q", value)
	}
	*s = Seconds(d)
	return nil
}

// Env lists the environment overrides. Each one is applied only when set.
type Env struct {
	TxReceiptTimeout Seconds `envconfig:"TX_RECEIPT_TIMEOUT"`
	TxReceiptPoll    Seconds `envconfig:"TX_RECEIPT_POLL"`
	NetworkMode      string  `envconfig:"NETWORK_MODE"`
	APISecret        string  `envconfig:"API_SECRET"`
	RPCURL           string  `envconfig:"RPC_URL"`
}

// ApplyEnv applies the NECTAR_* environment overrides to cfg.
func ApplyEnv(cfg *Client) error {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return xerrors.Errorf("processing environment: %w", err)
	}

	if envSet("TX_RECEIPT_TIMEOUT") {
		cfg.Tx.ReceiptTimeout = Duration(env.TxReceiptTimeout)
	}
	if envSet("TX_RECEIPT_POLL") {
		cfg.Tx.ReceiptPoll = Duration(env.TxReceiptPoll)
	}
	if env.NetworkMode != "" {
		cfg.Network = env.NetworkMode
	}
	if env.APISecret != "" {
		cfg.APISecret = env.APISecret
	}
	if env.RPCURL != "" {
		cfg.RPCURL = env.RPCURL
	}
	return nil
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

// ConfigComment encodes cfg as TOML with every line commented out.
func ConfigComment(cfg *Client) ([]byte, error) {
	buf := new(bytes.Buffer)
	_, _ = buf.WriteString("# Default config:\n")
	e := toml.NewEncoder(buf)
	if err := e.Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}
	b := buf.Bytes()
	b = bytes.ReplaceAll(b, []byte("\n"), []byte("\n#"))
	b = bytes.ReplaceAll(b, []byte("#["), []byte("["))
	return b, nil
}
