package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	sluiceconfig "github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/cli/tui"
	"github.com/pithecene-io/sluice/operation"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/section"
	"github.com/pithecene-io/sluice/types"
)

// ExportCommand returns the export command.
// It copies messages from the sources to a destination file, optionally
// restricted to index sections or to the messages matching --grep.
func ExportCommand() *cli.Command {
	flags := append(sourceFlags(),
		&cli.StringFlag{
			Name:    "destination",
			Aliases: []string{"o"},
			Usage:   "Destination file (created or appended to)",
		},
		&cli.StringSliceFlag{
			Name:  "sections",
			Usage: "Message index sections to export, e.g. 0-10,12 (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "read-to-end",
			Usage: "With --sections and several sources: select from the first source, then count the messages of the rest",
		},
		&cli.BoolFlag{
			Name:  "binary",
			Usage: "Write messages without a trailing newline",
		},
		&cli.StringSliceFlag{
			Name:  "grep",
			Usage: "Export only messages matching any of these filters (file sources only)",
		},
		&cli.BoolFlag{
			Name:  "regex",
			Usage: "Treat --grep values as regular expressions",
		},
		&cli.BoolFlag{
			Name:    "ignore-case",
			Aliases: []string{"i"},
			Usage:   "Case-insensitive --grep",
		},
		&cli.BoolFlag{
			Name:  "word",
			Usage: "Match --grep values on word boundaries",
		},
	)
	return &cli.Command{
		Name:   "export",
		Usage:  "Export messages from byte sources to a file",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: exportAction,
	}
}

func exportAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	env, err := setupOperation(ctx, c)
	if err != nil {
		return configError("%v", err)
	}
	defer env.cleanup()

	req, filters, err := buildExportRequest(c, env.cfg)
	if err != nil {
		return configError("%v", err)
	}

	if len(filters) > 0 {
		if len(req.Sections) > 0 {
			return configError("--grep and --sections are mutually exclusive")
		}
		if req.ReadToEnd {
			return configError("--grep and --read-to-end are mutually exclusive")
		}
		for _, spec := range req.Sources {
			if spec.Kind != operation.SourceFile {
				return configError("--grep requires file sources, got %s", spec)
			}
		}
		found, _ := env.runner.Extract(ctx, operation.ExtractRequest{
			Session:       req.Session,
			Sources:       req.Sources,
			Parser:        req.Parser,
			Filters:       filters,
			MaxLineLength: req.MaxLineLength,
		})
		if found.Outcome.Status != types.OutcomeSuccess {
			return outcomeExit(found.Outcome)
		}
		req.Sections = search.ToSections(found.Matches)
		if len(req.Sections) == 0 {
			env.log.Infof("no messages matched --grep; nothing to export")
			return nil
		}
	}

	res, _ := env.runner.Export(ctx, req)
	report := operation.BuildExportReport(res, req.Destination)

	if path := c.String("report"); path != "" {
		if err := operation.WriteReport(report, path); err != nil {
			env.log.Warnf("report not written: %v", err)
		}
	}

	if c.Bool("tui") {
		if err := r.RenderTUI(tui.ViewOperationReport, report); err != nil {
			return err
		}
	} else if err := r.Render(report); err != nil {
		return err
	}

	return outcomeExit(res.Outcome)
}

// buildExportRequest resolves export flags against the config file.
// Sections are validated later by the export engine.
func buildExportRequest(c *cli.Context, cfg *sluiceconfig.Config) (operation.ExportRequest, []search.Filter, error) {
	var req operation.ExportRequest

	specs, err := resolveSources(c, cfg)
	if err != nil {
		return req, nil, err
	}
	ec := configVal(cfg, func(c *sluiceconfig.Config) sluiceconfig.ExportConfig { return c.Export })
	pc := configVal(cfg, func(c *sluiceconfig.Config) sluiceconfig.ParserConfig { return c.Parser })

	destination := resolveString(c, "destination", ec.Destination)
	if destination == "" {
		return req, nil, fmt.Errorf("--destination is required (or set export.destination in the config file)")
	}

	sections, err := section.ParseList(strings.Join(resolveStringSlice(c, "sections", ec.Sections), ","))
	if err != nil {
		return req, nil, fmt.Errorf("invalid --sections: %w", err)
	}

	text := true
	if ec.Text != nil {
		text = *ec.Text
	}
	if c.IsSet("binary") {
		text = !c.Bool("binary")
	}

	parser, err := resolveParser(c, pc)
	if err != nil {
		return req, nil, err
	}

	req = operation.ExportRequest{
		Session:       resolveString(c, "session", configVal(cfg, func(c *sluiceconfig.Config) string { return c.Session })),
		Sources:       specs,
		Parser:        parser,
		Destination:   destination,
		Sections:      sections,
		ReadToEnd:     resolveBool(c, "read-to-end", ec.ReadToEnd),
		Text:          text,
		MaxLineLength: resolveInt(c, "max-line-length", pc.MaxLineLength),
		Buffer:        resolveInt(c, "buffer", pc.Buffer),
	}
	return req, grepFilters(c, "grep"), nil
}

func resolveParser(c *cli.Context, pc sluiceconfig.ParserConfig) (operation.ParserKind, error) {
	kind := operation.ParserKind(resolveString(c, "parser", pc.Kind))
	switch kind {
	case operation.ParserText, operation.ParserFrame:
		return kind, nil
	default:
		return "", fmt.Errorf("invalid --parser %q (must be text or frame)", kind)
	}
}

// grepFilters builds search filters from a string slice flag and the
// shared --regex, --ignore-case and --word switches.
func grepFilters(c *cli.Context, name string) []search.Filter {
	values := c.StringSlice(name)
	if len(values) == 0 {
		return nil
	}
	filters := make([]search.Filter, 0, len(values))
	for _, v := range values {
		filters = append(filters, search.Filter{
			Value:      v,
			IsRegex:    c.Bool("regex"),
			IgnoreCase: c.Bool("ignore-case"),
			IsWord:     c.Bool("word"),
		})
	}
	return filters
}
