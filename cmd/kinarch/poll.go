package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kinarch/kinarch/archiver"
	"github.com/kinarch/kinarch/aws_client"
	"github.com/kinarch/kinarch/config"
	"github.com/kinarch/kinarch/kinesis_poller"
)

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Consume the configured Kinesis stream and archive its records",
		Args:  cobra.NoArgs,
		RunE:  runPoll,
	}
}

func runPoll(cmd *cobra.Command, _ []string) error {
	// configuration problems must refuse to start, not misprocess records
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StreamName == "" {
		return errors.New("stream_name is required for poll")
	}

	clientCfg := aws_client.ClientConfig{
		Region:      cfg.Region,
		Profile:     cfg.Profile,
		AccessKey:   cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		EndpointURL: cfg.EndpointURL,
	}
	if err := clientCfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s3Client, err := aws_client.NewS3Client(ctx, clientCfg)
	if err != nil {
		return err
	}
	kinesisClient, err := aws_client.NewKinesisClient(ctx, clientCfg)
	if err != nil {
		return err
	}

	processor := archiver.NewProcessor(cfg, s3Client)
	poller := kinesis_poller.New(kinesisClient, processor, cfg)

	slog.Info("archiver starting",
		"stream", cfg.StreamName,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"starting_position", cfg.StartingPosition,
		"whitelist", cfg.TypeWhitelist,
	)

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
