package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/steelflow/internal/adapters/events/direct"
	"github.com/tjfontaine/steelflow/internal/api/design"
	"github.com/tjfontaine/steelflow/internal/core/ports"
	"github.com/tjfontaine/steelflow/internal/export"
	"github.com/tjfontaine/steelflow/internal/pkg/config"
	"github.com/tjfontaine/steelflow/internal/storage"
	"github.com/tjfontaine/steelflow/internal/telemetry"
	"github.com/tjfontaine/steelflow/internal/workflow"
)

// app holds the collaborators of one CLI invocation.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	out        *printer
	journal    ports.ActivityStore
	controller *workflow.Controller
	shutdown   func(context.Context) error
}

// newApp loads configuration, applies root flag overrides and wires the controller.
func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := cmd.String("base-url"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := cmd.String("token"); v != "" {
		cfg.Service.Token = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := cmd.String("journal"); v != "" {
		cfg.Journal.Driver = v
	}
	if v := cmd.String("journal-dsn"); v != "" {
		cfg.Journal.DSN = v
	}

	logger, err := newLogger(cmd.Root().ErrWriter, cfg.Log)
	if err != nil {
		return nil, err
	}

	out, err := newPrinter(cmd.Root().Writer, cmd.String("output"))
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitTracer(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Writer:      cmd.Root().ErrWriter,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	client := design.NewClient(cfg.Service.Token,
		design.WithBaseURL(cfg.Service.BaseURL),
		design.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Service.Timeout,
		}),
		design.WithLogger(logger),
	)

	journal, err := storage.Open(storage.Config{Driver: cfg.Journal.Driver, DSN: cfg.Journal.DSN})
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithAuditReader(client),
		workflow.WithRFIGenerator(client),
	}
	if journal != nil {
		publisher, err := direct.NewPublisher(journal)
		if err != nil {
			journal.Close()
			_ = shutdown(ctx)
			return nil, err
		}
		opts = append(opts, workflow.WithPublisher(publisher))
	}
	if cfg.Service.RemoteReject {
		opts = append(opts, workflow.WithRejecter(client))
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		out:        out,
		journal:    journal,
		controller: workflow.New(client, opts...),
		shutdown:   shutdown,
	}, nil
}

// open loads the connection named by the first positional argument.
func (a *app) open(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("connection id is required")
	}
	return a.controller.Open(ctx, id)
}

func (a *app) exportSink() (ports.ExportSink, error) {
	m := a.cfg.Export.Minio
	return export.New(export.Config{
		Sink: a.cfg.Export.Sink,
		Dir:  a.cfg.Export.Dir,
		Minio: export.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		},
	})
}

func (a *app) Close(ctx context.Context) {
	a.controller.Close()
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("failed to close journal", slog.String("error", err.Error()))
		}
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
}

// withApp runs fn with a wired app and releases it afterwards.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))
		return fn(ctx, cmd, a)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
