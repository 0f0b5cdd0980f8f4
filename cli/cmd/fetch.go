package cmd

import (
	"github.com/urfave/cli/v2"
)

// FetchCommand returns the fetch command. Downloads a backend object
// to a local path.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download an object from the active storage backend",
		ArgsUsage: "<remote-path> <local-path>",
		Flags:     []cli.Flag{ConfigFlag},
		Action:    fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("fetch requires <remote-path> and <local-path>", 1)
	}

	env, err := buildEnvironment(c)
	if err != nil {
		return err
	}

	result := env.orchestrator.SyncFromRemote(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}
