package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/poiesic/docreply"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/extract"
	"github.com/poiesic/docreply/ingestion"
	"github.com/urfave/cli/v2"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Extract, chunk, embed and store a document for a tenant",
		ArgsUsage: "<file>",
		Action:    ingestAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "phone",
				Aliases:  []string{"p"},
				Usage:    "Tenant business phone number",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "Delivery auth token for the tenant",
				EnvVars: []string{"DOCREPLY_AUTH_TOKEN"},
			},
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Delivery origin website for the tenant",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Document name (defaults to the file name)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Content type (defaults to detection from the file)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Image processing mode: ocr or transcribe",
				Value: string(extract.ModeOCR),
			},
			&cli.StringFlag{
				Name:  "intent",
				Usage: "Tenant intent label",
			},
			&cli.StringFlag{
				Name:  "system-prompt",
				Usage: "Tenant persona prompt",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Chunk size in characters (overrides ingestion.chunkSize)",
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "Chunk overlap in characters (overrides ingestion.chunkOverlap)",
			},
		},
	}
}

func ingestAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("chunk-size") {
		cfg.Ingestion.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("chunk-overlap") {
		cfg.Ingestion.ChunkOverlap = c.Int("chunk-overlap")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	progress := newProgressTracker(os.Stderr)
	svc, err := openService(c.Context, cfg, docreply.WithProgress(progress.Report))
	if err != nil {
		return err
	}
	defer svc.Close()

	extractor, err := svc.NewExtractor()
	if err != nil {
		return err
	}
	contentType := c.String("type")
	if contentType == "" {
		contentType = detectType(path, data)
	}
	text, kind, err := extractor.ExtractMode(c.Context, data, contentType, extract.Mode(c.String("mode")))
	if err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}

	pipeline, err := svc.NewPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	name := c.String("name")
	if name == "" {
		name = filepath.Base(path)
	}
	result, err := pipeline.Ingest(c.Context, ingestion.Request{
		Name:         name,
		Kind:         kind,
		Text:         text,
		Phone:        c.String("phone"),
		Credentials:  core.Credentials{AuthToken: c.String("auth-token"), Origin: c.String("origin")},
		Intent:       c.String("intent"),
		SystemPrompt: c.String("system-prompt"),
	})
	progress.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %s as %s: %d chunks (mapping %d)\n", name, result.DocumentID, result.ChunkCount, result.MappingID)
	return nil
}

func detectType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
