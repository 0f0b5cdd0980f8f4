package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// CleanupResponse reports the outcome of a local store cleanup.
type CleanupResponse struct {
	Removed   int    `json:"removed"`
	OlderThan string `json:"olderThan"`
}

// CleanupCommand returns the cleanup command. Removes local artifacts
// older than the given age.
func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove local artifacts older than the given age",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Minimum artifact age, e.g. 720h",
				Value: 30 * 24 * time.Hour,
			},
		},
		Action: cleanupAction,
	}
}

func cleanupAction(c *cli.Context) error {
	env, err := buildEnvironment(c)
	if err != nil {
		return err
	}
	if env.store == nil {
		return cli.Exit("cleanup requires store.data_dir in the config", 1)
	}

	age := c.Duration("older-than")
	removed, err := env.store.CleanupOlderThan(age)
	if err != nil {
		return err
	}
	return printJSON(CleanupResponse{Removed: removed, OlderThan: age.String()})
}
