// Package cmd provides CLI commands for the sluice binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml, msgpack.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml, msgpack",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for export and search.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (export, search only)",
	}
)

// ReadOnlyFlags returns the shared output flags.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// sourceFlags returns the flags shared by export and search: config file,
// byte sources, parser, storage, adapter and reporting.
func sourceFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to sluice.yaml",
		},
		&cli.StringFlag{
			Name:  "session",
			Usage: "Session label attached to records and events",
		},
		&cli.StringSliceFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Byte source (repeatable): path, file:P, serial:DEV, tcp:ADDR, udp:ADDR, ws://URL",
		},
		&cli.IntSliceFlag{
			Name:  "port",
			Usage: "UDP source port to keep (repeatable); others are skipped",
		},
		&cli.IntFlag{
			Name:  "baud",
			Usage: "Serial baud rate",
			Value: 115200,
		},
		&cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "Per-reload timeout for serial and network sources",
			Value: 100 * time.Millisecond,
		},
		&cli.StringFlag{
			Name:  "parser",
			Usage: "Message parser: text or frame",
			Value: "text",
		},
		&cli.IntFlag{
			Name:  "max-line-length",
			Usage: "Maximum text line length in bytes (0 = unbounded)",
		},
		&cli.IntFlag{
			Name:  "buffer",
			Usage: "Decouple parsing from processing with a buffer of N messages",
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringFlag{
			Name:  "adapter-encoding",
			Usage: "Webhook body encoding: json or msgpack",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header key=value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt adapter timeout",
			Value: 10 * time.Second,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Adapter retry attempts",
			Value: 3,
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON report to PATH (- for stderr)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
	}
	return append(flags, storageFlags()...)
}

// storageFlags returns the Lode storage flags shared by the operation
// commands and inspect.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Publish results to Lode storage: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset name",
		},
		&cli.StringFlag{
			Name:  "storage-source",
			Usage: "Source partition key for stored records",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for the s3 backend",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint (MinIO, R2)",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
	}
}
