// Package archiver is the invocation orchestrator: it drives a batch of raw
// stream records through decode, extraction, filtering and key building,
// hands the grouped write jobs to the batch writer, and aggregates ordered
// per-record outcomes for the caller.
package archiver

import (
	"context"
	"log/slog"
	"time"

	"github.com/kinarch/kinarch/batch_writer"
	"github.com/kinarch/kinarch/config"
	"github.com/kinarch/kinarch/decoder"
	"github.com/kinarch/kinarch/extractor"
	"github.com/kinarch/kinarch/partition"
	"github.com/kinarch/kinarch/type_filter"
	"github.com/kinarch/kinarch/types"
)

// Processor archives one batch of records per invocation. It is stateless
// across invocations: the object-store client is reused, everything else
// lives for a single ProcessBatch call.
type Processor struct {
	cfg       *config.Config
	extractor *extractor.Extractor
	filter    *type_filter.Filter
	keys      *partition.KeyBuilder
	writer    *batch_writer.Writer
}

func NewProcessor(cfg *config.Config, client batch_writer.ObjectPutter) *Processor {
	return &Processor{
		cfg:       cfg,
		extractor: extractor.New(cfg.IDField, cfg.TypeField, cfg.TimestampField, cfg.UnknownTypePrefix),
		filter:    type_filter.New(cfg.TypeWhitelist),
		keys:      partition.NewKeyBuilder(cfg.Prefix, cfg.Granularity()),
		writer: batch_writer.NewWriter(client, batch_writer.Config{
			Bucket:         cfg.Bucket,
			GzipLevel:      cfg.GzipLevel,
			MaxRetries:     cfg.WriteMaxRetries,
			MinRetryDelay:  time.Duration(cfg.WriteMinRetryDelay) * time.Millisecond,
			MaxConcurrency: cfg.WriteMaxConcurrency,
			RateLimit:      cfg.WriteRateLimit,
			RateBurst:      cfg.WriteRateBurst,
		}),
	}
}

// MaxBatchSize is the cap on records a single invocation should be handed;
// hosts chunk their input accordingly.
func (p *Processor) MaxBatchSize() int {
	return p.cfg.MaxBatchSize
}

// ProcessBatch runs every record through the pipeline and returns one
// outcome per record, ordered identically to the input. Record-level
// failures never abort the batch; the error return is reserved for a context
// cancelled before any work could start.
func (p *Processor) ProcessBatch(ctx context.Context, records []types.RawRecord) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	receivedAt := time.Now().UTC()
	result := &Result{
		Outcomes: make([]types.Outcome, len(records)),
	}
	result.Status.Records = len(records)

	// classification phase: decode, extract, filter and key every record
	// before any write is issued, so grouping sees the whole batch
	var items []batch_writer.Item
	for i := range records {
		record := &records[i]
		token := record.SequenceToken()
		result.Outcomes[i].SequenceToken = token

		entries, err := decoder.Decode(record.Data)
		if err != nil {
			slog.Error("record decode failed", "sequence_token", token, "error", err)
			result.Outcomes[i].Status = types.OutcomeDecodeFailed
			result.Outcomes[i].Err = err
			continue
		}
		result.Status.Entries += len(entries)

		admitted := 0
		for _, entry := range entries {
			fields := p.extractor.Extract(entry, token, receivedAt)
			if fields.TimestampFallback {
				slog.Warn("timestamp missing or unparsable, using receipt time",
					"sequence_token", token, "type", fields.Type)
			}
			// admission is decided on the extracted type, before any
			// timestamp demotion renames it
			if !p.filter.Admit(fields.BaseType) {
				slog.Debug("entry dropped by type whitelist", "type", fields.BaseType, "sequence_token", token)
				continue
			}
			items = append(items, batch_writer.Item{
				Position:     i,
				Key:          p.keys.Key(fields.Type, fields.Timestamp, fields.ID),
				BucketPrefix: p.keys.BucketPrefix(fields.Type, fields.Timestamp),
				Entry:        entry,
			})
			admitted++
		}

		if admitted == 0 {
			// whitelist drop or control message; a success, not an error
			result.Outcomes[i].Status = types.OutcomeFiltered
			continue
		}
		// provisional; downgraded below if a write for this record fails
		result.Outcomes[i].Status = types.OutcomeWritten
	}

	// write phase: grouping is complete, issue one write per group
	groups := batch_writer.BuildGroups(items)
	result.Status.Objects = len(groups)

	for _, groupResult := range p.writer.WriteGroups(ctx, groups) {
		if groupResult.Err == nil {
			continue
		}
		for _, pos := range groupResult.Group.Positions() {
			result.Outcomes[pos].Status = types.OutcomeWriteFailed
			result.Outcomes[pos].Err = groupResult.Err
		}
	}

	for _, outcome := range result.Outcomes {
		result.Status.Update(outcome)
	}
	slog.Info("invocation complete", "status", &result.Status)

	return result, nil
}
