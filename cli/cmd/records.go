package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/parser/frame"
)

// RecordRow is one decoded record of a binary frame export.
type RecordRow struct {
	Index   int            `json:"index"`
	Time    string         `json:"time,omitempty"`
	Level   string         `json:"level,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RecordsCommand returns the records command, which decodes a file written
// by `export --parser frame --binary` back into records.
func RecordsCommand() *cli.Command {
	return &cli.Command{
		Name:      "records",
		Usage:     "Decode the records of a binary frame export",
		ArgsUsage: "FILE",
		Flags:     ReadOnlyFlags(),
		Action:    recordsAction,
	}
}

func recordsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return configError("%v", err)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for records command", 1)
	}
	if c.NArg() != 1 {
		return configError("records requires exactly one FILE argument")
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer iox.DiscardClose(f)

	rows, skipped, err := decodeRecords(f)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if skipped > 0 {
		log.NewLoggerWithLevel(nil, c.App.ErrWriter, "warn").With("cli").Sugar().
			Warnf("skipped %d undecodable records", skipped)
	}
	return r.Render(rows)
}

// decodeRecords reads every frame of rd. Frames whose payload is not a
// record are skipped and counted; a truncated or oversized frame ends the
// read with an error.
func decodeRecords(rd io.Reader) ([]RecordRow, int, error) {
	dec := frame.NewDecoder(rd)
	rows := []RecordRow{}
	skipped := 0
	for index := 0; ; index++ {
		rec, err := dec.ReadRecord()
		if errors.Is(err, io.EOF) {
			return rows, skipped, nil
		}
		if frame.IsFatalError(err) {
			return rows, skipped, fmt.Errorf("frame %d: %w", index, err)
		}
		if err != nil {
			skipped++
			continue
		}

		row := RecordRow{Index: index, Level: rec.Level, Message: rec.Message, Fields: rec.Fields}
		if rec.Ts != 0 {
			row.Time = time.UnixMilli(rec.Ts).UTC().Format(time.RFC3339Nano)
		}
		rows = append(rows, row)
	}
}
