package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/reader"
	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/lode"
	"github.com/pithecene-io/sluice/search"
)

// newReader opens a reader over stored operation records. Swapped in tests.
var newReader = func(ctx context.Context, choice storageChoice) (reader.Reader, error) {
	dataset := choice.dataset
	if dataset == "" {
		dataset = lode.DefaultDataset
	}
	switch choice.backend {
	case "fs":
		ds, err := lode.NewReadDatasetFS(dataset, choice.path)
		if err != nil {
			return nil, err
		}
		return reader.NewLodeReader(ds, choice.source), nil
	case "s3":
		bucket, prefix := lode.ParseS3Path(choice.path)
		ds, err := lode.NewReadDatasetS3(ctx, dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.s3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return reader.NewLodeReader(ds, choice.source), nil
	default:
		return nil, fmt.Errorf("--storage-backend is required (fs or s3)")
	}
}

// InspectCommand returns the inspect command, which reads back the stored
// summary or matches of a finished operation.
func InspectCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to sluice.yaml",
		},
		&cli.BoolFlag{
			Name:  "matches",
			Usage: "Show the stored matches instead of the summary",
		},
	}, storageFlags()...)
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show a stored operation summary",
		ArgsUsage: "OPERATION_ID",
		Flags:     append(flags, ReadOnlyFlags()...),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for inspect command", 1)
	}
	if c.NArg() != 1 {
		return configError("inspect requires exactly one OPERATION_ID argument")
	}
	operationID := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return configError("%v", err)
	}
	choice, err := resolveStorage(c, cfg)
	if err != nil {
		return configError("%v", err)
	}
	rd, err := newReader(c.Context, choice)
	if err != nil {
		return configError("%v", err)
	}

	if c.Bool("matches") {
		matches, err := rd.ListMatches(c.Context, operationID)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if r.Format() == render.FormatTable {
			return r.Render(matchRows(nil, matches))
		}
		if matches == nil {
			matches = []search.ExtractedMatchValue{}
		}
		return r.Render(matches)
	}

	summary, err := rd.InspectOperation(c.Context, operationID)
	if errors.Is(err, reader.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("operation %s not found", operationID), 1)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(summary)
}
