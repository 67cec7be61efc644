// Package kinesis_poller reads a Kinesis stream and feeds record batches to
// the archiver. Shards are polled concurrently, but records within one shard
// are processed strictly in order: the next GetRecords call for a shard is
// not issued until the previous batch's invocation has returned.
package kinesis_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"golang.org/x/sync/errgroup"

	"github.com/kinarch/kinarch/archiver"
	"github.com/kinarch/kinarch/config"
	"github.com/kinarch/kinarch/types"
)

const defaultPollInterval = time.Second

// StreamAPI is the slice of the Kinesis API the poller needs.
type StreamAPI interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

// BatchProcessor is the invocation surface the poller drives.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, records []types.RawRecord) (*archiver.Result, error)
	MaxBatchSize() int
}

type Poller struct {
	client              StreamAPI
	processor           BatchProcessor
	streamName          string
	iteratorType        kinesistypes.ShardIteratorType
	pollInterval        time.Duration
	retryDecodeFailures bool
}

func New(client StreamAPI, processor BatchProcessor, cfg *config.Config) *Poller {
	iteratorType := kinesistypes.ShardIteratorTypeTrimHorizon
	if config.StartingPosition(cfg.StartingPosition) == config.StartingPositionLatest {
		iteratorType = kinesistypes.ShardIteratorTypeLatest
	}
	return &Poller{
		client:              client,
		processor:           processor,
		streamName:          cfg.StreamName,
		iteratorType:        iteratorType,
		pollInterval:        defaultPollInterval,
		retryDecodeFailures: cfg.RetryDecodeFailures,
	}
}

// Run polls every shard of the stream until the context is cancelled or all
// shards are closed.
func (p *Poller) Run(ctx context.Context) error {
	shardIDs, err := p.listShards(ctx)
	if err != nil {
		return err
	}
	slog.Info("starting shard pollers", "stream", p.streamName, "shards", len(shardIDs))

	eg, ctx := errgroup.WithContext(ctx)
	for _, shardID := range shardIDs {
		shardID := shardID
		eg.Go(func() error {
			return p.pollShard(ctx, shardID)
		})
	}
	return eg.Wait()
}

func (p *Poller) listShards(ctx context.Context) ([]string, error) {
	var shardIDs []string
	var nextToken *string
	for {
		input := &kinesis.ListShardsInput{}
		if nextToken != nil {
			input.NextToken = nextToken
		} else {
			input.StreamName = aws.String(p.streamName)
		}
		out, err := p.client.ListShards(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list shards for %s: %w", p.streamName, err)
		}
		for _, shard := range out.Shards {
			shardIDs = append(shardIDs, aws.ToString(shard.ShardId))
		}
		if out.NextToken == nil {
			return shardIDs, nil
		}
		nextToken = out.NextToken
	}
}

func (p *Poller) pollShard(ctx context.Context, shardID string) error {
	iterator, err := p.shardIterator(ctx, shardID, p.iteratorType, "")
	if err != nil {
		return err
	}

	// sequence of the last delivered record, used to resume after an
	// expired iterator without replaying
	var lastSequence string

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := p.client.GetRecords(ctx, &kinesis.GetRecordsInput{
			ShardIterator: aws.String(iterator),
			Limit:         aws.Int32(int32(p.processor.MaxBatchSize())),
		})
		if err != nil {
			var expired *kinesistypes.ExpiredIteratorException
			if errors.As(err, &expired) {
				iterator, err = p.resumeIterator(ctx, shardID, lastSequence)
				if err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("GetRecords failed for shard %s: %w", shardID, err)
		}

		if len(out.Records) > 0 {
			records := convertRecords(shardID, out.Records)
			result, err := p.processor.ProcessBatch(ctx, records)
			if err != nil {
				return err
			}
			if retryable := result.RetryableSequenceTokens(p.retryDecodeFailures); len(retryable) > 0 {
				// the poller has no redelivery queue: surface the failed
				// subset loudly so an operator can replay it
				slog.Warn("records failed and need re-delivery",
					"shard", shardID, "sequence_tokens", retryable)
			}
			lastSequence = aws.ToString(out.Records[len(out.Records)-1].SequenceNumber)
		}

		if out.NextShardIterator == nil {
			slog.Info("shard closed", "shard", shardID)
			return nil
		}
		iterator = aws.ToString(out.NextShardIterator)

		if len(out.Records) == 0 {
			select {
			case <-time.After(p.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Poller) shardIterator(ctx context.Context, shardID string, iteratorType kinesistypes.ShardIteratorType, sequence string) (string, error) {
	input := &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(p.streamName),
		ShardId:           aws.String(shardID),
		ShardIteratorType: iteratorType,
	}
	if sequence != "" {
		input.StartingSequenceNumber = aws.String(sequence)
	}
	out, err := p.client.GetShardIterator(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to get iterator for shard %s: %w", shardID, err)
	}
	return aws.ToString(out.ShardIterator), nil
}

// resumeIterator re-acquires an iterator after expiry, continuing after the
// last processed record when one is known.
func (p *Poller) resumeIterator(ctx context.Context, shardID, lastSequence string) (string, error) {
	if lastSequence == "" {
		return p.shardIterator(ctx, shardID, p.iteratorType, "")
	}
	return p.shardIterator(ctx, shardID, kinesistypes.ShardIteratorTypeAfterSequenceNumber, lastSequence)
}

func convertRecords(shardID string, kinesisRecords []kinesistypes.Record) []types.RawRecord {
	records := make([]types.RawRecord, len(kinesisRecords))
	for i, r := range kinesisRecords {
		records[i] = types.RawRecord{
			ShardID:        shardID,
			SequenceNumber: aws.ToString(r.SequenceNumber),
			PartitionKey:   aws.ToString(r.PartitionKey),
			Data:           r.Data,
			ArrivalTime:    aws.ToTime(r.ApproximateArrivalTimestamp),
		}
	}
	return records
}
