package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	sluiceconfig "github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/cli/tui"
	"github.com/pithecene-io/sluice/operation"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/types"
)

// matchRow is one filter match flattened for table output.
type matchRow struct {
	Index  int      `json:"index"`
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

// SearchCommand returns the search command.
func SearchCommand() *cli.Command {
	flags := append(sourceFlags(),
		&cli.StringSliceFlag{
			Name:    "filter",
			Aliases: []string{"e"},
			Usage:   "Filter value (repeatable); a message matches if any filter matches",
		},
		&cli.BoolFlag{
			Name:  "regex",
			Usage: "Treat filter values as regular expressions",
		},
		&cli.BoolFlag{
			Name:    "ignore-case",
			Aliases: []string{"i"},
			Usage:   "Case-insensitive matching",
		},
		&cli.BoolFlag{
			Name:  "word",
			Usage: "Match on word boundaries",
		},
		&cli.StringFlag{
			Name:  "matches-out",
			Usage: "Also write the matches to PATH",
		},
		&cli.StringFlag{
			Name:  "matches-encoding",
			Usage: "Encoding for --matches-out: json or msgpack",
			Value: operation.EncodingJSON,
		},
	)
	return &cli.Command{
		Name:   "search",
		Usage:  "Extract filter matches from byte sources",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: searchAction,
	}
}

func searchAction(c *cli.Context) error {
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

	req, err := buildExtractRequest(c, env.cfg)
	if err != nil {
		return configError("%v", err)
	}

	res, _ := env.runner.Extract(ctx, req)

	if path := c.String("report"); path != "" {
		if err := operation.WriteReport(operation.BuildExtractReport(res), path); err != nil {
			env.log.Warnf("report not written: %v", err)
		}
	}
	if path := c.String("matches-out"); path != "" && res.Outcome.Status == types.OutcomeSuccess {
		if err := writeMatches(path, c.String("matches-encoding"), res.Matches); err != nil {
			return configError("%v", err)
		}
	}

	switch {
	case c.Bool("tui"):
		view := &tui.MatchesView{Matches: res.Matches}
		for _, f := range req.Filters {
			view.Filters = append(view.Filters, f.Value)
		}
		if err := r.RenderTUI(tui.ViewSearchMatches, view); err != nil {
			return err
		}
	case r.Format() == render.FormatTable:
		if err := r.Render(matchRows(req.Filters, res.Matches)); err != nil {
			return err
		}
	default:
		matches := res.Matches
		if matches == nil {
			matches = []search.ExtractedMatchValue{}
		}
		if err := r.Render(matches); err != nil {
			return err
		}
	}

	return outcomeExit(res.Outcome)
}

func buildExtractRequest(c *cli.Context, cfg *sluiceconfig.Config) (operation.ExtractRequest, error) {
	var req operation.ExtractRequest

	specs, err := resolveSources(c, cfg)
	if err != nil {
		return req, err
	}
	filters := grepFilters(c, "filter")
	if len(filters) == 0 {
		return req, fmt.Errorf("at least one --filter is required")
	}
	pc := configVal(cfg, func(c *sluiceconfig.Config) sluiceconfig.ParserConfig { return c.Parser })
	parser, err := resolveParser(c, pc)
	if err != nil {
		return req, err
	}

	return operation.ExtractRequest{
		Session:       resolveString(c, "session", configVal(cfg, func(c *sluiceconfig.Config) string { return c.Session })),
		Sources:       specs,
		Parser:        parser,
		Filters:       filters,
		MaxLineLength: resolveInt(c, "max-line-length", pc.MaxLineLength),
		Buffer:        resolveInt(c, "buffer", pc.Buffer),
	}, nil
}

func matchRows(filters []search.Filter, matches []search.ExtractedMatchValue) []matchRow {
	rows := make([]matchRow, 0, len(matches))
	for _, m := range matches {
		for _, fm := range m.Values {
			name := fmt.Sprintf("filter%d", fm.Filter)
			if fm.Filter < len(filters) {
				name = filters[fm.Filter].Value
			}
			rows = append(rows, matchRow{Index: m.Index, Filter: name, Values: fm.Values})
		}
	}
	return rows
}

func writeMatches(path, encoding string, matches []search.ExtractedMatchValue) error {
	data, err := operation.EncodeMatches(encoding, matches)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write matches to %s: %w", path, err)
	}
	return nil
}
