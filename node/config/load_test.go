package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nectarprotocol/nectar-go/build"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
)

func TestDecodeNothing(t *testing.T) {
	assert := assert.New(t)

	{
		cfg, err := FromFile(os.DevNull, DefaultClient())
		assert.Nil(err, "error should be nil")
		assert.Equal(DefaultClient(), cfg, "config from empty file should be the same as default")
	}

	{
		cfg, err := FromFile("./does-not-exist.toml", DefaultClient())
		assert.Nil(err, "error should be nil")
		assert.Equal(DefaultClient(), cfg, "config from not existing file should be the same as default")
	}
}

func TestParitalConfig(t *testing.T) {
	assert := assert.New(t)
	cfgString := `
		Network = "localhost"
		[Tx]
		ReceiptTimeout = "1m"
		[Results]
		Deadline = "10m"
		[Logging.SubsystemLevels]
		querymgr = "debug"
	`
	expected := DefaultClient()
	expected.Network = build.Localhost
	expected.Tx.ReceiptTimeout = Duration(time.Minute)
	expected.Results.Deadline = Duration(10 * time.Minute)
	expected.Logging.SubsystemLevels["querymgr"] = "debug"

	{
		cfg, err := FromReader(bytes.NewReader([]byte(cfgString)), DefaultClient())
		assert.NoError(err, "error should be nil")
		assert.Equal(expected, cfg, "config from reader should contain changes")
	}

	{
		f, err := os.CreateTemp("", "config-*.toml")
		fname := f.Name()

		assert.NoError(err, "tmp file should not error")
		_, err = f.WriteString(cfgString)
		assert.NoError(err, "writing to tmp file should not error")
		err = f.Close()
		assert.NoError(err, "closing tmp file should not error")
		defer os.Remove(fname) //nolint:errcheck

		cfg, err := FromFile(fname, DefaultClient())
		assert.Nil(err, "error should be nil")
		assert.Equal(expected, cfg, "config from reader should contain changes")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NECTAR_TX_RECEIPT_TIMEOUT", "30")
	t.Setenv("NECTAR_TX_RECEIPT_POLL", "2")
	t.Setenv("NECTAR_NETWORK_MODE", "moonbase")
	t.Setenv("NECTAR_API_SECRET", "0x01")
	t.Setenv("NECTAR_RPC_URL", "http://node:8545")

	cfg, err := FromReader(strings.NewReader(`Network = "localhost"`), nil)
	require.NoError(t, err)
	require.Equal(t, Duration(30*time.Second), cfg.Tx.ReceiptTimeout)
	require.Equal(t, Duration(2*time.Second), cfg.Tx.ReceiptPoll)
	require.Equal(t, build.Moonbase, cfg.Network)
	require.Equal(t, "0x01", cfg.APISecret)
	require.Equal(t, "http://node:8545", cfg.RPCURL)

	t.Setenv("NECTAR_TX_RECEIPT_TIMEOUT", "forever")
	_, err = FromReader(strings.NewReader(""), nil)
	require.Error(t, err)
}

func TestEnvOverrideSingleTunable(t *testing.T) {
	t.Setenv("NECTAR_TX_RECEIPT_POLL", "1")

	cfg, err := FromFile(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.NoError(t, err)
	require.Equal(t, Duration(time.Second), cfg.Tx.ReceiptPoll)
	require.Equal(t, DefaultClient().Tx.ReceiptTimeout, cfg.Tx.ReceiptTimeout)
}

func TestReceiptDefaults(t *testing.T) {
	cfg := DefaultClient()
	require.Equal(t, 180*time.Second, time.Duration(cfg.Tx.ReceiptTimeout))
	require.Equal(t, 5*time.Second, time.Duration(cfg.Tx.ReceiptPoll))
}

func TestConfigCommentRoundTrip(t *testing.T) {
	b, err := ConfigComment(DefaultClient())
	require.NoError(t, err)
	require.Contains(t, string(b), `#  ReceiptTimeout = "3m0s"`)

	body := strings.TrimPrefix(string(b), "# Default config:\n")
	uncommented := strings.ReplaceAll(body, "#", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(uncommented), 0644))

	cfg, err := FromFile(path, DefaultClient())
	require.NoError(t, err)
	require.Equal(t, DefaultClient(), cfg)
}

func TestResolveNetwork(t *testing.T) {
	cfg := DefaultClient()
	cfg.Network = build.Localhost
	cfg.WorkerKey = strings.Repeat("ab", 32)

	n, err := ResolveNetwork(cfg)
	require.NoError(t, err)
	require.EqualValues(t, 31337, n.ChainID)
	require.Len(t, n.Addresses, len(contracts.All))
	require.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", n.Addresses[contracts.USDC].String())

	cfg.Addresses.USDC = "0x00000000000000000000000000000000000000aa"
	n, err = ResolveNetwork(cfg)
	require.NoError(t, err)
	require.Equal(t, "0x00000000000000000000000000000000000000aa", n.Addresses[contracts.USDC].String())

	// public bundles need their addresses and worker key from config
	cfg = DefaultClient()
	_, err = ResolveNetwork(cfg)
	require.ErrorContains(t, err, "no queryManager address")
	require.ErrorContains(t, err, "no worker key")

	cfg.Network = "mainnet"
	_, err = ResolveNetwork(cfg)
	require.ErrorContains(t, err, "unknown network mode")
}
