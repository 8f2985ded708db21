// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/docreply"
	"github.com/poiesic/docreply/config"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docreply",
		Usage: "Document-grounded auto-responder for messaging channels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"DOCREPLY_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file loaded before environment overrides",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			respondCommand(),
			consumeCommand(),
			searchCommand(),
			reembedCommand(),
			templateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig reads configuration from the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"), c.String("env-file"))
}

func openService(ctx context.Context, cfg *config.Config, opts ...docreply.ServiceOption) (*docreply.Service, error) {
	svc, err := docreply.Open(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening service: %w", err)
	}
	return svc, nil
}
