package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-mailorder-bridge/internal/aws"
	"github.com/imrishuroy/go-mailorder-bridge/internal/config"
	"github.com/imrishuroy/go-mailorder-bridge/internal/idempotency"
	"github.com/imrishuroy/go-mailorder-bridge/internal/ingest"
	"github.com/imrishuroy/go-mailorder-bridge/internal/logging"
	"github.com/imrishuroy/go-mailorder-bridge/internal/metrics"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
	"github.com/imrishuroy/go-mailorder-bridge/internal/parser"
)

func main() {
	app := &cli.App{
		Name:  "worker",
		Usage: "ingest forwarded order emails into the order store",
		Commands: []*cli.Command{
			{
				Name:  "sqs",
				Usage: "consume raw order payloads from an SQS queue",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "queue-url", Usage: "feed queue (default $ORDERFLOW_FEED_QUEUE_URL)"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "serve /metrics on this address"},
				},
				Action: runSQS,
			},
			{
				Name:      "files",
				Usage:     "ingest payloads from files, - for stdin",
				ArgsUsage: "<path|->...",
				Action:    runFiles,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		logrus.WithError(err).Error("worker failed")
		os.Exit(1)
	}
}

// worker holds everything a subcommand needs.
type worker struct {
	cfg       *config.Config
	log       *logrus.Entry
	metrics   *metrics.Registry
	processor *Processor
	clients   *aws.AWSClients
	closeLog  func() error
}

func setup(ctx context.Context, needAWS bool) (*worker, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	log := logger.WithField("service", cfg.ServiceName)

	store := orders.NewStore(cfg.DataDir, log.WithField("component", "store"))
	if err := store.Init(); err != nil {
		closeLog()
		return nil, err
	}

	var clients *aws.AWSClients
	if needAWS || cfg.UsesAWS() {
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			closeLog()
			return nil, err
		}
	}

	reg := metrics.NewRegistry()
	pipeline := ingest.NewPipeline(ingest.Deps{
		Parser:  parser.New(log.WithField("component", "parser")),
		Store:   store,
		Guard:   idempotency.NewStore(cfg.DedupWindow),
		Metrics: reg,
		Hooks:   hooks(cfg, clients),
		Log:     log.WithField("component", "ingest"),
	})

	return &worker{
		cfg:       cfg,
		log:       log,
		metrics:   reg,
		processor: NewProcessor(pipeline, log.WithField("component", "worker")),
		clients:   clients,
		closeLog:  closeLog,
	}, nil
}

func hooks(cfg *config.Config, clients *aws.AWSClients) []ingest.Hook {
	var hs []ingest.Hook
	if clients == nil {
		return hs
	}
	if cfg.NotifyQueueURL != "" {
		hs = append(hs, ingest.NotifyHook{Publisher: aws.NewPublisher(clients.SQS, cfg.NotifyQueueURL)})
	}
	if cfg.CloudWatchNamespace != "" {
		hs = append(hs, ingest.NewCloudWatchHook(clients.CloudWatch, cfg.CloudWatchNamespace))
	}
	return hs
}

func runSQS(c *cli.Context) error {
	w, err := setup(c.Context, true)
	if err != nil {
		return err
	}
	defer w.closeLog()

	queueURL := c.String("queue-url")
	if queueURL == "" {
		queueURL = w.cfg.FeedQueueURL
	}
	if queueURL == "" {
		return errors.New("no feed queue: set --queue-url or ORDERFLOW_FEED_QUEUE_URL")
	}

	consumer := aws.NewConsumer(w.clients.SQS, queueURL, w.log.WithField("component", "consumer"))

	g, gctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		return consumer.Run(gctx, w.processor.HandleMessage)
	})
	if addr := c.String("metrics-addr"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: w.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
	return g.Wait()
}

func runFiles(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("files: at least one path or - is required", 2)
	}
	w, err := setup(c.Context, false)
	if err != nil {
		return err
	}
	defer w.closeLog()

	sum, err := w.processor.IngestFiles(c.Context, c.Args().Slice(), os.Stdin)
	if err != nil {
		return err
	}
	out, _ := json.Marshal(sum)
	fmt.Fprintln(c.App.Writer, string(out))
	if sum.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d payloads failed to store", sum.Failed), 1)
	}
	return nil
}
