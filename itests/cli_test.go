package itests

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	lcli "github.com/nectarprotocol/nectar-go/cli"
	"github.com/nectarprotocol/nectar-go/itests/kit"
	"github.com/nectarprotocol/nectar-go/ledger"
)

func TestCLIQueryFlow(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	owner := ens.Owner()
	analyst := ens.Analyst(big.NewInt(startingFunds))
	ownerCLI := kit.NewMockCLI(ctx, t, lcli.Commands, owner.Client)
	analystCLI := kit.NewMockCLI(ctx, t, lcli.Commands, analyst.Client)

	pid := ownerCLI.RunCmd("policy", "add", "--column", "*", "--category", "*", "--price", "0.00001", "--disclose", "sum")
	out := ownerCLI.RunCmd("policy", "read", pid)
	require.Contains(t, out, "10 (0.000010 USDC)")
	require.Contains(t, out, owner.Key.Address.String())

	bid := ownerCLI.RunCmd("bucket", "add", "--policy", pid, "--node", ens.Sim.Worker().Address().String())
	id, err := big.FromString(bid)
	require.NoError(t, err)
	ens.Sim.Worker().Load(id, patients...)

	out = ownerCLI.RunCmd("bucket", "read", bid)
	require.Contains(t, out, pid)
	require.Contains(t, out, "std1")

	require.Equal(t, "10 (0.000010 USDC)", analystCLI.RunCmd("price", "--bucket", bid))

	out = analystCLI.RunCmd("query", "--bucket", bid, "count", "age")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "Submitted query "))
	require.Equal(t, "4", lines[1])
	userIndex := strings.TrimPrefix(lines[0], "Submitted query ")

	out = analystCLI.RunCmd("query", "--bucket", bid, "--where", "site eq south", "--where", "age gt 50", "mean", "weight")
	require.True(t, strings.HasSuffix(out, "83.5"), out)

	out = analystCLI.RunCmd("compute", "--main", "max:weight", "--bucket", bid)
	require.True(t, strings.HasSuffix(out, "90"), out)

	require.Equal(t, "4", analystCLI.RunCmd("result", userIndex))

	out = analystCLI.RunCmd("list")
	require.Len(t, strings.Split(out, "\n"), 3)
	require.Contains(t, out, fmt.Sprintf("%s\taggregate\tSUCCESS\t10", userIndex))

	require.Equal(t, fmt.Sprintf("%s\tDA", analyst.Key.Address), analystCLI.RunCmd("role", "show"))
}

func TestCLIRejectsBadInput(t *testing.T) {
	kit.QuietLedgerLogs()
	ens := kit.NewEnsemble(t)
	ctx := ens.Context()

	analyst := ens.Analyst(big.NewInt(startingFunds))
	cli := kit.NewMockCLI(ctx, t, lcli.Commands, analyst.Client)

	_, err := cli.RunCmdRaw("query", "--bucket", "1")
	var phe *lcli.PrintHelpErr
	require.ErrorAs(t, err, &phe)

	_, err = cli.RunCmdRaw("query", "--bucket", "1", "--where", "age", "count")
	require.ErrorAs(t, err, &phe)

	_, err = cli.RunCmdRaw("policy", "add", "--column", "age", "--price", "1")
	var uerr *api.ErrUnauthorized
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, ledger.RoleAnalyst, uerr.Role)
}
