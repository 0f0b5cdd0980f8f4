package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/planline/planlink/syncd"
)

// SyncCommand returns the sync command. Uploads one or more local
// files to the active storage backend.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Sync local files to the active storage backend",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			ConfigFlag,
			AssumeYesFlag,
			&cli.BoolFlag{
				Name:  "compress",
				Usage: "Gzip files before upload",
			},
			&cli.BoolFlag{
				Name:  "delete-local",
				Usage: "Remove local files after a confirmed sync",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Remote grouping category",
			},
		},
		Action: syncAction,
	}
}

func syncAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("sync requires at least one file argument", 1)
	}

	env, err := buildEnvironment(c)
	if err != nil {
		return err
	}

	opts := syncd.Options{
		Compress:    c.Bool("compress"),
		DeleteLocal: c.Bool("delete-local"),
		Category:    c.String("category"),
	}

	results := env.orchestrator.BulkSyncToRemote(c.Context, c.Args().Slice(), opts)
	if err := printJSON(results); err != nil {
		return err
	}

	for _, r := range results {
		if !r.Success {
			return cli.Exit("", 1)
		}
	}
	return nil
}
