package main

import (
	"fmt"
	"strings"

	"github.com/poiesic/docreply/core"
	"github.com/urfave/cli/v2"
)

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:   "template",
		Usage:  "Send a pre-approved template message with a tenant's credentials",
		Action: templateAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Tenant business phone number",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient phone number",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "template",
				Usage:    "Template ID",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "param",
				Usage: "Template parameter as key=value (repeatable)",
			},
		},
	}
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid template parameter %q, expected key=value", pair)
		}
		params[strings.TrimSpace(key)] = value
	}
	return params, nil
}

func templateAction(c *cli.Context) error {
	params, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c.Context, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	phone := c.String("from")
	mappings, err := svc.Store().MappingsByPhone(c.Context, phone)
	if err != nil {
		return err
	}
	tenant := core.ResolveTenant(phone, mappings)
	if !tenant.Credentials.Complete() {
		return fmt.Errorf("%w: %s", core.ErrMissingCredentials, phone)
	}

	if err := svc.NewSender().SendTemplate(c.Context, c.String("to"), c.String("template"), params, tenant.Credentials); err != nil {
		return err
	}
	fmt.Printf("Template %s sent to %s\n", c.String("template"), c.String("to"))
	return nil
}
