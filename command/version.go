package command

import (
	"fmt"

	"github.com/mitchellh/cli"
)

// VersionCommand implements `catalogd version`.
type VersionCommand struct {
	Ui      cli.Ui
	Version string
	Channel string
	Commit  string
}

func (c *VersionCommand) Help() string     { return "Usage: catalogd version" }
func (c *VersionCommand) Synopsis() string { return "Prints the catalogd version" }

func (c *VersionCommand) Run(args []string) int {
	c.Ui.Output(fmt.Sprintf("catalogd %s (%s, %s)", c.Version, c.Channel, c.Commit))
	return 0
}
