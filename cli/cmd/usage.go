package cmd

import (
	"github.com/urfave/cli/v2"
)

// UsageCommand returns the usage command. Reports the active storage
// backend's usage, recomputed on demand.
func UsageCommand() *cli.Command {
	return &cli.Command{
		Name:   "usage",
		Usage:  "Show storage usage of the active backend",
		Flags:  []cli.Flag{ConfigFlag},
		Action: usageAction,
	}
}

func usageAction(c *cli.Context) error {
	env, err := buildEnvironment(c)
	if err != nil {
		return err
	}

	info, err := env.orchestrator.Usage(c.Context)
	if err != nil {
		return err
	}
	return printJSON(info)
}
