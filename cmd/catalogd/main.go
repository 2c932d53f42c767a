// Command catalogd runs the personalized catalog provider service.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"

	"github.com/basakil/catalogd/command"
	"github.com/basakil/catalogd/command/agent"
)

var (
	version = "0.1.0"
	channel = "stable"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}

	c := cli.NewCLI("catalogd", version)
	c.Args = args
	c.Commands = map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return agent.New(ui), nil
		},
		"version": func() (cli.Command, error) {
			return &command.VersionCommand{Ui: ui, Version: version, Channel: channel, Commit: commit}, nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitStatus
}
