package main

import (
	"fmt"
	"os"

	"github.com/poiesic/docreply/reembed"
	"github.com/urfave/cli/v2"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Recompute stored chunk vectors with the configured embedding model",
		Action: reembedAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-normalize",
				Usage: "Store vectors exactly as the model returns them",
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, err := openService(c.Context, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	tracker := newProgressTracker(os.Stderr)
	config := reembed.DefaultConfig()
	config.Normalize = !c.Bool("no-normalize")
	config.Progress = tracker.Report

	r, err := svc.NewReembedder(config, os.Stderr)
	if err != nil {
		return err
	}
	summary, err := r.Run(c.Context)
	tracker.Finish()
	if err != nil {
		for _, id := range summary.Failed {
			fmt.Fprintf(os.Stderr, "not reembedded: %s\n", id)
		}
		return err
	}
	return nil
}
