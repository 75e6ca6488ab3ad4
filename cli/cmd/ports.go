package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/source"
)

// PortResponse is one row of the ports command.
type PortResponse struct {
	Name string `json:"name"`
}

// listPorts is swapped in tests.
var listPorts = source.ListSerialPorts

// PortsCommand returns the ports command, which lists serial ports
// usable as serial: sources.
func PortsCommand() *cli.Command {
	return &cli.Command{
		Name:   "ports",
		Usage:  "List available serial ports",
		Flags:  ReadOnlyFlags(),
		Action: portsAction,
	}
}

func portsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for ports command", 1)
	}

	names, err := listPorts()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp := make([]PortResponse, 0, len(names))
	for _, n := range names {
		resp = append(resp, PortResponse{Name: n})
	}
	return r.Render(resp)
}
