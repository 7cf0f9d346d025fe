package kit

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	lcli "github.com/urfave/cli/v2"

	"github.com/nectarprotocol/nectar-go/node"
)

// MockCLI runs cli commands in-process against an already connected client.
type MockCLI struct {
	t   *testing.T
	app *lcli.App
	out *bytes.Buffer
}

func NewMockCLI(ctx context.Context, t *testing.T, cmds []*lcli.Command, c *node.Client) *MockCLI {
	var out bytes.Buffer
	app := &lcli.App{
		Name:                      "nectar",
		Commands:                  cmds,
		Writer:                    &out,
		ErrWriter:                 &out,
		ExitErrHandler:            func(*lcli.Context, error) {},
		DisableSliceFlagSeparator: true,
	}
	app.Setup()
	app.Metadata["testnode-client"] = c
	app.Metadata["context"] = ctx
	return &MockCLI{t: t, app: app, out: &out}
}

func (c *MockCLI) RunCmd(input ...string) string {
	out, err := c.RunCmdRaw(input...)
	require.NoError(c.t, err, "output:\n%s", out)

	return out
}

func (c *MockCLI) RunCmdRaw(input ...string) (string, error) {
	err := c.app.Run(append([]string{c.app.Name}, input...))

	str := strings.TrimSpace(c.out.String())
	c.out.Reset()
	return str, err
}
