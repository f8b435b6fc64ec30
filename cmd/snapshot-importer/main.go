package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/kafka"
)

// maxLineSize bounds one JSON line; detailed snapshots carry every stat
const maxLineSize = 1 << 20

// options are the importer's command line settings
type options struct {
	input     string
	batchSize int
	source    string
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated), overrides config")
	topic := flag.String("topic", "", "Kafka topic, overrides config")
	input := flag.String("file", "-", "JSON lines file of snapshot submissions, - for stdin")
	batchSize := flag.Int("batch", 500, "Messages per produce call")
	source := flag.String("source", domain.SourceImport, "Source recorded on submissions that have none")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.Topic = *topic
	}

	opts := options{input: *input, batchSize: *batchSize, source: *source}
	if err := run(&cfg.Kafka, opts, openPublisher, logger); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func openPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (publishCloser, error) {
	return kafka.NewPublisher(cfg, logger)
}

// run imports one input. Inputs and the producer are closed before it returns.
func run(cfg *config.KafkaConfig, opts options, open func(*config.KafkaConfig, *slog.Logger) (publishCloser, error), logger *slog.Logger) error {
	in := io.Reader(os.Stdin)
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	p, err := open(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating producer: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("failed to close producer", "error", err)
		}
	}()

	logger.Info("importing snapshots", "brokers", cfg.Brokers, "topic", cfg.Topic)
	sent, skipped, err := importLines(in, p, opts.batchSize, opts.source, logger)
	if err != nil {
		return fmt.Errorf("sent %d, skipped %d: %w", sent, skipped, err)
	}
	logger.Info("import completed", "sent", sent, "skipped", skipped)
	return nil
}

type publisher interface {
	Publish(subs []domain.SnapshotSubmission) error
}

type publishCloser interface {
	publisher
	Close() error
}

// importLines publishes every well-formed line and skips the rest
func importLines(r io.Reader, p publisher, batchSize int, source string, logger *slog.Logger) (sent, skipped int, err error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	batch := make([]domain.SnapshotSubmission, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.Publish(batch); err != nil {
			return err
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var sub domain.SnapshotSubmission
		if err := json.Unmarshal([]byte(text), &sub); err != nil {
			logger.Warn("skipping malformed line", "line", line, "error", err)
			skipped++
			continue
		}
		if sub.PlayerID == "" || sub.ObservedAt.IsZero() || len(sub.Values) == 0 {
			logger.Warn("skipping incomplete submission", "line", line, "player_id", sub.PlayerID)
			skipped++
			continue
		}
		if sub.Source == "" {
			sub.Source = source
		}

		batch = append(batch, sub)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return sent, skipped, fmt.Errorf("publishing batch ending at line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sent, skipped, fmt.Errorf("reading input: %w", err)
	}
	if err := flush(); err != nil {
		return sent, skipped, fmt.Errorf("publishing final batch: %w", err)
	}
	return sent, skipped, nil
}
