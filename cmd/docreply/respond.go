package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/delivery"
	"github.com/poiesic/docreply/transport/kafka"
	"github.com/urfave/cli/v2"
)

func respondCommand() *cli.Command {
	return &cli.Command{
		Name:   "respond",
		Usage:  "Answer one inbound message as if it arrived on the webhook",
		Action: respondAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Sender phone number",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Tenant business phone number",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "text",
				Aliases:  []string{"t"},
				Usage:    "Message text",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Message ID (defaults to a random ID)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the reply instead of delivering it",
			},
		},
	}
}

// printSender writes replies instead of delivering them.
func printSender(w io.Writer) delivery.Sender {
	return delivery.SenderFunc(func(ctx context.Context, recipient, text string, creds core.Credentials) error {
		_, err := fmt.Fprintf(w, "-> %s: %s\n", recipient, text)
		return err
	})
}

func respondAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c.Context, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	var sender delivery.Sender = svc.NewSender()
	if c.Bool("dry-run") {
		sender = printSender(os.Stdout)
	}
	resp, err := svc.NewResponder(sender)
	if err != nil {
		return err
	}
	defer resp.Release()

	id := c.String("id")
	if id == "" {
		id = uuid.NewString()
	}
	result, err := resp.Respond(c.Context, &core.InboundEvent{
		ID:         id,
		From:       c.String("from"),
		To:         c.String("to"),
		Text:       c.String("text"),
		Kind:       core.EventInboundMessage,
		ReceivedAt: time.Now().UTC(),
	})
	fmt.Printf("Outcome: %s (delivered: %t)\n", result.Outcome, result.Delivered)
	if result.ResponseText != "" && !c.Bool("dry-run") {
		fmt.Printf("Reply: %s\n", result.ResponseText)
	}
	return err
}

func consumeCommand() *cli.Command {
	return &cli.Command{
		Name:   "consume",
		Usage:  "Answer inbound messages read from Kafka",
		Action: consumeAction,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "brokers",
				Usage: "Kafka brokers (overrides kafka.brokers)",
			},
			&cli.StringFlag{
				Name:  "topic",
				Usage: "Topic to read (overrides kafka.topic)",
			},
			&cli.StringFlag{
				Name:  "group",
				Usage: "Consumer group (overrides kafka.groupId)",
			},
		},
	}
}

func consumeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if brokers := c.StringSlice("brokers"); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	if topic := c.String("topic"); topic != "" {
		cfg.Kafka.Topic = topic
	}
	if group := c.String("group"); group != "" {
		cfg.Kafka.GroupID = group
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.NewResponder(svc.NewSender())
	if err != nil {
		return err
	}
	defer resp.Release()

	// Failures with an outcome are already recorded on the event. Only
	// errors without one leave the offset uncommitted.
	consumer := kafka.NewConsumer(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, func(ctx context.Context, event *core.InboundEvent) error {
		result, err := resp.Respond(ctx, event)
		if err != nil && result.Outcome == "" {
			return err
		}
		return nil
	})
	defer consumer.Close()

	return consumer.Run(ctx)
}
