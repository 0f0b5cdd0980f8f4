package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/planline/planlink/config"
	"github.com/planline/planlink/ipc"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/remote"
)

// ProbeResponse reports reachability of the sync peers.
type ProbeResponse struct {
	LocalPeer      bool `json:"localPeer"`
	Remote         bool `json:"remote"`
	StorageBackend bool `json:"storageBackend"`
}

// ProbeCommand returns the probe command. Checks the local channel
// peer, the remote backend and the storage backend.
func ProbeCommand() *cli.Command {
	return &cli.Command{
		Name:   "probe",
		Usage:  "Probe the local peer, the remote backend and the storage backend",
		Flags:  []cli.Flag{ConfigFlag},
		Action: probeAction,
	}
}

func probeAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logger := log.NewLogger("probe")
	var resp ProbeResponse

	// An unconfigured transport is simply reported as down.
	if cfg.Channel.Address != "" {
		channel, err := ipc.NewChannelTransport(ipc.Config{
			Network:        cfg.Channel.Network,
			Address:        cfg.Channel.Address,
			ConnectTimeout: cfg.Channel.ConnectTimeout.Duration,
		}, logger)
		if err != nil {
			return err
		}
		resp.LocalPeer = channel.Probe(c.Context)
	}
	if cfg.Remote.BaseURL != "" {
		backend, err := remote.NewTransport(remote.Config{
			BaseURL:      cfg.Remote.BaseURL,
			Timeout:      cfg.Remote.Timeout.Duration,
			ProbeTimeout: cfg.Remote.ProbeTimeout.Duration,
			Headers:      cfg.Remote.Headers,
		}, logger, nil)
		if err != nil {
			return err
		}
		resp.Remote = backend.Healthy(c.Context)
	}

	if active, aerr := newRegistry(c.Context, cfg).New(cfg.Storage.Backend); aerr == nil {
		resp.StorageBackend = active.Healthy(c.Context)
	}

	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.LocalPeer && !resp.Remote {
		return cli.Exit("", 1)
	}
	return nil
}
