package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/steelflow/internal/adapters/dropfolder"
	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
	"github.com/tjfontaine/steelflow/internal/pkg/config"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "steelflow",
		Usage: "Drive the connection design workflow against the design service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: config.DefaultPath, Usage: "YAML config file"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: formatJSON, Usage: "output format: json or yaml"},
			&cli.StringFlag{Name: "base-url", Usage: "design service URL including /api"},
			&cli.StringFlag{Name: "token", Usage: "bearer token for the design service"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "journal", Usage: "activity journal driver: none, memory, sqlite or postgres"},
			&cli.StringFlag{Name: "journal-dsn", Usage: "activity journal data source"},
		},
		Commands: []*cli.Command{
			connectionCommand(),
			redlineCommand(),
			auditCommand(),
			journalCommand(),
			fieldsCommand(),
		},
	}
}

func connectionCommand() *cli.Command {
	return &cli.Command{
		Name:  "connection",
		Usage: "Inspect, edit, validate and export a connection",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show a connection with its redlines",
				ArgsUsage: "<connection-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					snap := a.controller.Connection()
					return a.out.Print(connectionView{
						Connection:        snap.Connection,
						Validation:        snap.Validation,
						MissingParameters: domain.MissingRequired(snap.Connection.ConnectionType, snap.Connection.Parameters),
						Redlines:          a.controller.Redlines(),
					})
				}),
			},
			{
				Name:      "set",
				Usage:     "Set parameters and save them; an empty value removes the key",
				ArgsUsage: "<connection-id> key=value...",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					assignments := cmd.Args().Tail()
					if len(assignments) == 0 {
						return fmt.Errorf("at least one key=value is required")
					}
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					for _, assignment := range assignments {
						key, value, ok := strings.Cut(assignment, "=")
						if !ok {
							return fmt.Errorf("invalid assignment %q, expected key=value", assignment)
						}
						if err := a.controller.EditParameterText(key, value); err != nil {
							return err
						}
					}
					conn, err := a.controller.SaveParameters(ctx)
					if err != nil {
						return err
					}
					return a.out.Print(conn)
				}),
			},
			{
				Name:      "validate",
				Usage:     "Run rule and geometry validation",
				ArgsUsage: "<connection-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					result, err := a.controller.Validate(ctx)
					if err != nil {
						return err
					}
					return a.out.Print(result)
				}),
			},
			{
				Name:      "export",
				Usage:     "Export a validated connection to Tekla",
				ArgsUsage: "<connection-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stdout", Usage: "write the Tekla document to stdout instead of the export sink"},
					&cli.StringFlag{Name: "dir", Usage: "override export.dir for the dir sink"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					if cmd.Bool("stdout") {
						payload, err := a.controller.Export(ctx)
						if err != nil {
							return err
						}
						return a.out.Raw(payload.TeklaExport)
					}
					if dir := cmd.String("dir"); dir != "" {
						a.cfg.Export.Dir = dir
					}
					sink, err := a.exportSink()
					if err != nil {
						return err
					}
					receipt, err := a.controller.ExportTo(ctx, sink)
					if err != nil {
						return err
					}
					return a.out.Print(exportView{
						Name:       receipt.Name,
						Location:   receipt.Location,
						Format:     receipt.Payload.Format,
						Disclaimer: receipt.Payload.Disclaimer,
					})
				}),
			},
			{
				Name:      "rfi",
				Usage:     "Draft a Request for Information about an issue with the connection",
				ArgsUsage: "<connection-id> <issue...>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					issue := strings.Join(cmd.Args().Tail(), " ")
					if strings.TrimSpace(issue) == "" {
						return fmt.Errorf("an issue description is required")
					}
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					draft, err := a.controller.GenerateRFI(ctx, issue)
					if err != nil {
						return err
					}
					return a.out.Print(draft)
				}),
			},
		},
	}
}

func redlineCommand() *cli.Command {
	return &cli.Command{
		Name:  "redline",
		Usage: "Upload, interpret and decide on redline markups",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the redlines of a connection",
				ArgsUsage: "<connection-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					return a.out.Print(a.controller.Redlines())
				}),
			},
			{
				Name:      "upload",
				Usage:     "Upload a markup file and interpret it",
				ArgsUsage: "<connection-id> <file>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					path := cmd.Args().Get(1)
					if path == "" {
						return fmt.Errorf("markup file is required")
					}
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					return uploadMarkup(ctx, a, filepath.Base(path), data)
				}),
			},
			{
				Name:      "watch",
				Usage:     "Upload and interpret every markup file dropped into a directory",
				ArgsUsage: "<connection-id> <dir>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "settle", Value: time.Second, Usage: "quiet period before a new file is uploaded"},
					&cli.StringSliceFlag{Name: "ext", Value: []string{".pdf", ".png", ".jpg", ".jpeg"}, Usage: "markup file extensions"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					dir := cmd.Args().Get(1)
					if dir == "" {
						return fmt.Errorf("drop folder is required")
					}
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					w, err := dropfolder.New(dir,
						dropfolder.WithSettle(cmd.Duration("settle")),
						dropfolder.WithExtensions(cmd.StringSlice("ext")...),
						dropfolder.WithLogger(a.logger),
					)
					if err != nil {
						return err
					}
					if err := w.Watch(ctx, func(ctx context.Context, path string) error {
						data, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						return uploadMarkup(ctx, a, filepath.Base(path), data)
					}); err != nil {
						return err
					}
					defer w.Close()
					select {
					case <-ctx.Done():
					case <-w.Done():
					}
					return nil
				}),
			},
			{
				Name:      "interpret",
				Usage:     "Run AI interpretation for a redline",
				ArgsUsage: "<connection-id> <redline-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					result, err := a.controller.InterpretRedline(ctx, cmd.Args().Get(1))
					if err != nil {
						return err
					}
					return a.out.Print(result)
				}),
			},
			{
				Name:      "approve",
				Usage:     "Approve a redline, merging its parameters into the connection",
				ArgsUsage: "<connection-id> <redline-id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "key=value override; replaces the suggested parameters"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					overrides, err := parseParams(cmd.StringSlice("param"))
					if err != nil {
						return err
					}
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					approval, err := a.controller.ApproveRedline(ctx, cmd.Args().Get(1), overrides)
					if err != nil {
						return err
					}
					return a.out.Print(approvalView{
						Approval:   approval,
						Connection: a.controller.Connection().Connection,
					})
				}),
			},
			{
				Name:      "reject",
				Usage:     "Reject a redline without changing the connection",
				ArgsUsage: "<connection-id> <redline-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					if err := a.controller.RejectRedline(ctx, cmd.Args().Get(1)); err != nil {
						return err
					}
					return a.out.Print(a.controller.Redlines())
				}),
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Read the design service audit log",
		Commands: []*cli.Command{
			{
				Name:      "connection",
				Usage:     "Audit entries for a connection",
				ArgsUsage: "<connection-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.open(ctx, cmd); err != nil {
						return err
					}
					entries, err := a.controller.AuditTrail(ctx)
					if err != nil {
						return err
					}
					return a.out.Print(entries)
				}),
			},
			{
				Name:  "mine",
				Usage: "Your recent audit entries",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					entries, err := a.controller.MyActivity(ctx, int(cmd.Int("limit")))
					if err != nil {
						return err
					}
					return a.out.Print(entries)
				}),
			},
		},
	}
}

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:      "journal",
		Usage:     "List locally journaled workflow activity",
		ArgsUsage: "[connection-id]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "most recent records only"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if a.journal == nil {
				return fmt.Errorf("activity journal is disabled; set journal.driver")
			}
			records, err := a.journal.ListActivity(ctx, ports.ActivityListOptions{
				ConnectionID: cmd.Args().First(),
				Limit:        int(cmd.Int("limit")),
			})
			if err != nil {
				return err
			}
			return a.out.Print(records)
		}),
	}
}

func fieldsCommand() *cli.Command {
	return &cli.Command{
		Name:      "fields",
		Usage:     "List the parameter fields of a connection type",
		ArgsUsage: "<connection-type>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out, err := newPrinter(cmd.Root().Writer, cmd.String("output"))
			if err != nil {
				return err
			}
			t := domain.ConnectionType(cmd.Args().First())
			if !t.Valid() {
				return fmt.Errorf("unknown connection type %q", t)
			}
			return out.Print(domain.ParameterFields(t))
		},
	}
}

// uploadMarkup uploads one file, prints both step results and returns the first failure.
func uploadMarkup(ctx context.Context, a *app, fileName string, data []byte) error {
	out := a.controller.UploadRedline(ctx, fileName, data)
	if err := a.out.Print(uploadView{
		RedlineID:      out.RedlineID,
		Upload:         stepView{State: string(out.Upload.State), Error: errString(out.Upload.Err)},
		Interpret:      stepView{State: string(out.Interpret.State), Error: errString(out.Interpret.Err)},
		Interpretation: out.Interpretation,
	}); err != nil {
		return err
	}
	return out.Err()
}

func parseParams(assignments []string) (domain.Parameters, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	params := make(domain.Parameters, len(assignments))
	for _, assignment := range assignments {
		key, value, ok := strings.Cut(assignment, "=")
		if !ok || key == "" {
			return nil, domain.ErrValidationf("invalid parameter %q, expected key=value", assignment)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, domain.ErrValidationf("parameter %s: %q is not a finite number", key, value)
		}
		params[key] = f
	}
	return params, nil
}

type connectionView struct {
	Connection        *domain.Connection       `json:"connection"`
	Validation        *domain.ValidationResult `json:"validation,omitempty"`
	MissingParameters []string                 `json:"missing_parameters,omitempty"`
	Redlines          []domain.Redline         `json:"redlines"`
}

type exportView struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	Format     string `json:"format,omitempty"`
	Disclaimer string `json:"disclaimer,omitempty"`
}

type uploadView struct {
	RedlineID      string                 `json:"redline_id,omitempty"`
	Upload         stepView               `json:"upload"`
	Interpret      stepView               `json:"interpret"`
	Interpretation *domain.Interpretation `json:"interpretation,omitempty"`
}

type approvalView struct {
	Approval   *domain.Approval   `json:"approval"`
	Connection *domain.Connection `json:"connection"`
}
