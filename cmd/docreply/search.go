package main

import (
	"fmt"
	"strings"

	"github.com/poiesic/docreply/core"
	"github.com/urfave/cli/v2"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Show the chunks retrieval would use for a question",
		ArgsUsage: "<query>",
		Action:    searchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "phone",
				Aliases: []string{"p"},
				Usage:   "Restrict to a tenant's documents",
			},
			&cli.IntFlag{
				Name:  "k",
				Usage: "Number of chunks (overrides responder.k)",
			},
		},
	}
}

func searchAction(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	k := cfg.Responder.K
	if c.IsSet("k") {
		k = c.Int("k")
	}

	svc, err := openService(c.Context, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	scope := core.AllDocuments()
	if phone := c.String("phone"); phone != "" {
		mappings, err := svc.Store().MappingsByPhone(c.Context, phone)
		if err != nil {
			return err
		}
		tenant := core.ResolveTenant(phone, mappings)
		if len(tenant.Documents) == 0 {
			return fmt.Errorf("%w: %s", core.ErrNoDocuments, phone)
		}
		scope = core.DocumentScope(tenant.Documents...)
	}

	hits, err := svc.Retriever().RetrieveText(c.Context, query, scope, k)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d hits\n", len(hits))
	for i, hit := range hits {
		fmt.Printf("%d: [%0.3f] %s#%d %q\n", i, hit.Score, hit.DocumentID, hit.Ordinal, hit.Text)
	}
	return nil
}
