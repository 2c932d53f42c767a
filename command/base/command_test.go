package base

import (
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct{}

func (fakeCommand) Help() string     { return "usage" }
func (fakeCommand) Run([]string) int { return 0 }
func (fakeCommand) Synopsis() string { return "" }

func TestCommand_ConfigFileAndListenAddr_DefaultEmpty(t *testing.T) {
	c := &Command{Ui: &cli.BasicUi{}}
	c.NewFlagSet(fakeCommand{})
	require.NoError(t, c.Parse(nil))

	require.Equal(t, "", c.ConfigFile())
	require.Equal(t, "", c.ListenAddr())
}

func TestCommand_ParsesFlagsAndMergesValues(t *testing.T) {
	c := &Command{Ui: &cli.BasicUi{}}
	c.NewFlagSet(fakeCommand{})
	require.NoError(t, c.Parse([]string{"-config-file=/etc/catalogd.hcl", "-listen-addr=127.0.0.1:9090"}))

	require.Equal(t, "/etc/catalogd.hcl", c.ConfigFile())
	require.Equal(t, "127.0.0.1:9090", c.ListenAddr())
}

func TestCommand_HelpListsEveryRegisteredFlag(t *testing.T) {
	c := &Command{Ui: &cli.BasicUi{}}
	c.NewFlagSet(fakeCommand{})

	help := c.Help()
	require.Contains(t, help, "-config-file")
	require.Contains(t, help, "-listen-addr")
}

func TestWrapAtLength_WrapsLongUsageText(t *testing.T) {
	long := "This is a fairly long usage string that should wrap across more than one line once indented by five spaces."
	wrapped := wrapAtLength(long, 5)

	for _, line := range splitLines(wrapped) {
		require.LessOrEqual(t, len(line), maxLineLength)
	}
	require.Contains(t, wrapped, "     This") // 5-space indent on first line
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
