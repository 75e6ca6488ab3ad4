package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	sluiceconfig "github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/cli/reader"
	"github.com/pithecene-io/sluice/operation"
	"github.com/pithecene-io/sluice/parser/frame"
	"github.com/pithecene-io/sluice/search"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestCommands_NoDuplicateFlags(t *testing.T) {
	for _, cmd := range []*cli.Command{ExportCommand(), SearchCommand(), InspectCommand(), RecordsCommand(), PortsCommand(), VersionCommand("")} {
		seen := map[string]bool{}
		for _, f := range cmd.Flags {
			for _, name := range f.Names() {
				if seen[name] {
					t.Errorf("%s: duplicate flag name %q", cmd.Name, name)
				}
				seen[name] = true
			}
		}
	}
}

// --- Config precedence ---

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues are registered and marked as explicitly set (c.IsSet returns
// true); defaultFlags are registered with defaults only.
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"destination": "cli.log"}, nil)
	got := resolveString(c, "destination", "config.log")
	if got != "cli.log" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"destination": ""})
	got := resolveString(c, "destination", "config.log")
	if got != "config.log" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_UrfaveDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"parser": "text"})
	got := resolveString(c, "parser", "")
	if got != "text" {
		t.Errorf("expected urfave default, got %q", got)
	}
}

func TestConfigVal_NilConfig(t *testing.T) {
	got := configVal(nil, func(c *sluiceconfig.Config) string { return c.Session })
	if got != "" {
		t.Errorf("expected empty for nil config, got %q", got)
	}
}

func TestConfigVal_NonNil(t *testing.T) {
	cfg := &sluiceconfig.Config{Session: "from-config"}
	got := configVal(cfg, func(c *sluiceconfig.Config) string { return c.Session })
	if got != "from-config" {
		t.Errorf("expected from-config, got %q", got)
	}
}

func TestResolveInt(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.IntFlag{Name: "buffer"}}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("buffer", 0, "")
	c := cli.NewContext(app, fs, nil)
	if got := resolveInt(c, "buffer", 64); got != 64 {
		t.Errorf("expected config fallback 64, got %d", got)
	}

	_ = fs.Set("buffer", "8")
	if got := resolveInt(c, "buffer", 64); got != 8 {
		t.Errorf("expected CLI to win with 8, got %d", got)
	}
}

func TestResolveBool_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "read-to-end"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("read-to-end", false, "")
	_ = fs.Set("read-to-end", "false")
	c := cli.NewContext(app, fs, nil)

	if resolveBool(c, "read-to-end", true) {
		t.Error("expected explicit CLI false to win over config true")
	}
}

func TestResolveDuration(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "adapter-timeout"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("adapter-timeout", 0, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveDuration(c, "adapter-timeout", 10*time.Second); got != 10*time.Second {
		t.Errorf("expected config fallback 10s, got %v", got)
	}
	_ = fs.Set("adapter-timeout", "30s")
	if got := resolveDuration(c, "adapter-timeout", 10*time.Second); got != 30*time.Second {
		t.Errorf("expected CLI 30s to win, got %v", got)
	}
}

// --- Adapter config ---

func newAdapterTestContext(t *testing.T, flags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "adapter-url"},
		&cli.StringFlag{Name: "adapter-channel"},
		&cli.StringFlag{Name: "adapter-encoding"},
		&cli.DurationFlag{Name: "adapter-timeout", Value: 10 * time.Second},
		&cli.IntFlag{Name: "adapter-retries", Value: 3},
		&cli.StringSliceFlag{Name: "adapter-header"},
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("adapter-url", "", "")
	fs.String("adapter-channel", "", "")
	fs.String("adapter-encoding", "", "")
	fs.Duration("adapter-timeout", 10*time.Second, "")
	fs.Int("adapter-retries", 3, "")
	for name, val := range flags {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestParseAdapterConfig(t *testing.T) {
	retries := 5
	tests := []struct {
		name        string
		flags       map[string]string
		cfg         *sluiceconfig.Config
		adapterType string
		errContains string
		check       func(t *testing.T, ac *adapterChoice)
	}{
		{
			name:        "webhook valid",
			flags:       map[string]string{"adapter-url": "https://hooks.example.com/sluice"},
			adapterType: "webhook",
			check: func(t *testing.T, ac *adapterChoice) {
				if ac.url != "https://hooks.example.com/sluice" || ac.retries != 3 {
					t.Errorf("choice = %+v", ac)
				}
			},
		},
		{
			name:        "webhook missing url",
			adapterType: "webhook",
			errContains: "--adapter-url is required when --adapter=webhook",
		},
		{
			name:        "redis valid",
			flags:       map[string]string{"adapter-url": "redis://localhost:6379", "adapter-channel": "logs"},
			adapterType: "redis",
			check: func(t *testing.T, ac *adapterChoice) {
				if ac.channel != "logs" {
					t.Errorf("channel = %q", ac.channel)
				}
			},
		},
		{
			name:        "unknown type",
			flags:       map[string]string{"adapter-url": "https://example.com"},
			adapterType: "kafka",
			errContains: "unknown adapter type \"kafka\"",
		},
		{
			name:        "config provides url, retries and headers",
			adapterType: "webhook",
			cfg: &sluiceconfig.Config{Adapter: sluiceconfig.AdapterConfig{
				URL:      "https://from-config.example.com",
				Encoding: "msgpack",
				Retries:  &retries,
				Headers:  map[string]string{"X-Api-Key": "secret-123"},
			}},
			check: func(t *testing.T, ac *adapterChoice) {
				if ac.url != "https://from-config.example.com" || ac.retries != 5 || ac.encoding != "msgpack" {
					t.Errorf("choice = %+v", ac)
				}
				if ac.headers["X-Api-Key"] != "secret-123" {
					t.Errorf("config header not merged: %v", ac.headers)
				}
			},
		},
		{
			name:        "cli overrides config url",
			flags:       map[string]string{"adapter-url": "https://cli.example.com"},
			adapterType: "webhook",
			cfg:         &sluiceconfig.Config{Adapter: sluiceconfig.AdapterConfig{URL: "https://config.example.com"}},
			check: func(t *testing.T, ac *adapterChoice) {
				if ac.url != "https://cli.example.com" {
					t.Errorf("url = %q", ac.url)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAdapterTestContext(t, tt.flags)
			ac, err := parseAdapterConfigWithPrecedence(c, tt.cfg, tt.adapterType)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, ac)
			if _, err := buildAdapter(ac); err != nil {
				t.Errorf("buildAdapter: %v", err)
			}
		})
	}
}

func TestParseAdapterConfig_MalformedHeader(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "adapter-url"},
		&cli.StringSliceFlag{Name: "adapter-header"},
		&cli.DurationFlag{Name: "adapter-timeout", Value: 10 * time.Second},
		&cli.IntFlag{Name: "adapter-retries", Value: 3},
		&cli.StringFlag{Name: "adapter-channel"},
		&cli.StringFlag{Name: "adapter-encoding"},
	}

	var parseErr error
	app.Action = func(c *cli.Context) error {
		_, parseErr = parseAdapterConfigWithPrecedence(c, nil, "webhook")
		return nil
	}

	_ = app.Run([]string{"test",
		"--adapter-url", "https://example.com",
		"--adapter-header", "no-equals-sign",
	})

	if parseErr == nil {
		t.Fatal("expected error for malformed header")
	}
	if !strings.Contains(parseErr.Error(), "key=value") {
		t.Errorf("error should suggest key=value format, got: %v", parseErr)
	}
}

// --- Storage config ---

func TestResolveStorage(t *testing.T) {
	tests := []struct {
		name        string
		flags       map[string]string
		cfg         *sluiceconfig.Config
		errContains string
		backend     string
	}{
		{name: "disabled"},
		{name: "fs", flags: map[string]string{"storage-backend": "fs", "storage-path": "/data"}, backend: "fs"},
		{
			name:    "from config",
			cfg:     &sluiceconfig.Config{Storage: sluiceconfig.StorageConfig{Backend: "s3", Path: "bucket/prefix"}},
			backend: "s3",
		},
		{name: "path without backend", flags: map[string]string{"storage-path": "/data"}, errContains: "--storage-backend is required"},
		{name: "backend without path", flags: map[string]string{"storage-backend": "fs"}, errContains: "--storage-path is required"},
		{name: "unknown backend", flags: map[string]string{"storage-backend": "gcs", "storage-path": "x"}, errContains: "must be fs or s3"},
	}
	defaults := map[string]string{
		"storage-backend": "", "storage-path": "", "storage-dataset": "", "storage-source": "",
		"storage-region": "", "storage-endpoint": "",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLIContext(t, tt.flags, defaults)
			choice, err := resolveStorage(c, tt.cfg)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if choice.backend != tt.backend {
				t.Errorf("backend = %q, want %q", choice.backend, tt.backend)
			}
		})
	}
}

func TestBuildPublisher_FS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	p, err := buildPublisher(t.Context(), storageChoice{backend: "fs", path: dir})
	if err != nil {
		t.Fatalf("buildPublisher: %v", err)
	}
	defer p.Close()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("storage dir not created: %v", err)
	}

	none, err := buildPublisher(t.Context(), storageChoice{})
	if err != nil || none != nil {
		t.Errorf("disabled storage = %v, %v", none, err)
	}
}

// --- End to end ---

func newTestApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "sluice"
	app.Writer = out
	app.ErrWriter = io.Discard
	app.Commands = []*cli.Command{ExportCommand(), SearchCommand(), InspectCommand(), RecordsCommand(), PortsCommand(), VersionCommand("abc123")}
	app.ExitErrHandler = func(c *cli.Context, err error) {} // suppress os.Exit
	return app
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestExport_Sections(t *testing.T) {
	src := writeSource(t, "a\nb\nc\nd\n")
	dst := filepath.Join(t.TempDir(), "out.log")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"sluice", "export",
		"--source", src, "--destination", dst,
		"--sections", "1-2", "--format", "json", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	got, _ := os.ReadFile(dst)
	if string(got) != "b\nc\n" {
		t.Errorf("destination = %q, want %q", got, "b\nc\n")
	}

	var report operation.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("report: %v\n%s", err, out.String())
	}
	if report.Outcome != "success" || report.Export == nil || report.Export.Written != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestExport_Grep(t *testing.T) {
	src := writeSource(t, "id=1 boot\nnoise\nid=2 ready\nnoise\n")
	dst := filepath.Join(t.TempDir(), "out.log")

	err := newTestApp(io.Discard).Run([]string{"sluice", "export",
		"--source", "file:" + src, "--destination", dst,
		"--grep", "id=", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "id=1 boot\nid=2 ready\n" {
		t.Errorf("destination = %q", got)
	}
}

func TestExport_ConfigErrors(t *testing.T) {
	src := writeSource(t, "a\n")
	dst := filepath.Join(t.TempDir(), "out.log")

	tests := []struct {
		name string
		args []string
	}{
		{"missing source", []string{"--destination", dst}},
		{"missing destination", []string{"--source", src}},
		{"bad parser", []string{"--source", src, "--destination", dst, "--parser", "xml"}},
		{"bad section", []string{"--source", src, "--destination", dst, "--sections", "x"}},
		{"grep on network source", []string{"--source", "tcp:127.0.0.1:1", "--destination", dst, "--grep", "x"}},
		{"grep with read-to-end", []string{"--source", src, "--destination", dst, "--grep", "a", "--read-to-end"}},
		{"missing config file", []string{"--config", "/nonexistent/sluice.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"sluice", "export", "--log-level", "error"}, tt.args...)
			err := newTestApp(io.Discard).Run(args)
			if code := exitCode(err); code != operation.ExitCodeConfigError {
				t.Errorf("exit code = %d (%v), want %d", code, err, operation.ExitCodeConfigError)
			}
		})
	}
}

func TestExport_ReadToEndCountsRemainingSources(t *testing.T) {
	first := writeSource(t, "a\nb\nc\n")
	second := writeSource(t, "d\ne\n")
	dst := filepath.Join(t.TempDir(), "out.log")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"sluice", "export",
		"--source", first, "--source", second, "--destination", dst,
		"--sections", "1-1", "--read-to-end", "--format", "json", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "b\n" {
		t.Errorf("destination = %q", got)
	}
	var report operation.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Count != 2 || report.Export == nil || report.Export.Drained != 2 || report.Export.Written != 1 {
		t.Errorf("report = %+v, export = %+v", report, report.Export)
	}
}

func TestExport_AppendsToExistingDestination(t *testing.T) {
	src := writeSource(t, "c\n")
	dst := filepath.Join(t.TempDir(), "out.log")
	if err := os.WriteFile(dst, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := newTestApp(io.Discard).Run([]string{"sluice", "export",
		"--source", src, "--destination", dst, "--format", "json", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "a\nb\nc\n" {
		t.Errorf("destination = %q", got)
	}

	for _, f := range ExportCommand().Flags {
		if f.Names()[0] == "destination" && !strings.Contains(f.(*cli.StringFlag).Usage, "appended") {
			t.Errorf("destination usage = %q", f.(*cli.StringFlag).Usage)
		}
	}
}

func TestExport_InvalidSectionOrderIsConfigError(t *testing.T) {
	src := writeSource(t, "a\nb\n")
	dst := filepath.Join(t.TempDir(), "out.log")

	err := newTestApp(io.Discard).Run([]string{"sluice", "export",
		"--source", src, "--destination", dst, "--sections", "5-1", "--log-level", "error",
	})
	if code := exitCode(err); code != operation.ExitCodeConfigError {
		t.Errorf("exit code = %d (%v), want %d", code, err, operation.ExitCodeConfigError)
	}
}

func TestExport_ConfigFile(t *testing.T) {
	src := writeSource(t, "x\ny\n")
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.log")
	cfgPath := filepath.Join(dir, "sluice.yaml")
	yaml := "source: " + src + "\nexport:\n  destination: " + dst + "\n  sections: [\"0\"]\nlog:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := newTestApp(io.Discard).Run([]string{"sluice", "export", "--config", cfgPath}); err != nil {
		t.Fatalf("export: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "x\n" {
		t.Errorf("destination = %q, want %q", got, "x\n")
	}
}

func TestExport_StorageAndReport(t *testing.T) {
	src := writeSource(t, "a\nb\n")
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.log")
	reportPath := filepath.Join(dir, "report.json")

	err := newTestApp(io.Discard).Run([]string{"sluice", "export",
		"--source", src, "--destination", dst,
		"--storage-backend", "fs", "--storage-path", filepath.Join(dir, "store"),
		"--report", reportPath, "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report operation.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Export == nil || !strings.HasSuffix(report.Export.ArtifactPath, "/files/out.log") {
		t.Errorf("expected artifact path in report, got %+v", report.Export)
	}
	if report.Metrics == nil || report.Metrics.StorageWriteSuccess < 1 {
		t.Errorf("expected storage writes in metrics, got %+v", report.Metrics)
	}
}

func TestSearch_JSON(t *testing.T) {
	src := writeSource(t, "id=1 boot\nnoise\nid=22 ready\n")
	dir := t.TempDir()
	matchesPath := filepath.Join(dir, "matches.msgpack")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"sluice", "search",
		"--source", src, "--filter", `id=(\d+)`, "--regex", "--format", "json",
		"--matches-out", matchesPath, "--matches-encoding", "msgpack", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	var matches []search.ExtractedMatchValue
	if err := json.Unmarshal(out.Bytes(), &matches); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(matches) != 2 || matches[0].Index != 0 || matches[1].Index != 2 {
		t.Fatalf("matches = %+v", matches)
	}
	if got := matches[1].Values[0].Values; len(got) != 1 || got[0] != "22" {
		t.Errorf("captured values = %v, want [22]", got)
	}

	data, err := os.ReadFile(matchesPath)
	if err != nil {
		t.Fatalf("matches file: %v", err)
	}
	decoded, err := operation.DecodeMatches(operation.EncodingMsgpack, data)
	if err != nil || len(decoded) != 2 {
		t.Errorf("decoded matches = %+v, %v", decoded, err)
	}
}

func TestSearch_Table(t *testing.T) {
	src := writeSource(t, "ERROR disk\nok\nerror net\n")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"sluice", "search",
		"--source", src, "-e", "error", "-i", "--format", "table", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "index") || !strings.Contains(got, "ERROR") || !strings.Contains(got, "error") {
		t.Errorf("table output = %s", got)
	}
}

func TestSearch_RequiresFilter(t *testing.T) {
	src := writeSource(t, "a\n")
	err := newTestApp(io.Discard).Run([]string{"sluice", "search", "--source", src})
	if code := exitCode(err); code != operation.ExitCodeConfigError {
		t.Errorf("exit code = %d (%v), want %d", code, err, operation.ExitCodeConfigError)
	}
}

func TestSearch_MissingSourceIsIOError(t *testing.T) {
	err := newTestApp(io.Discard).Run([]string{"sluice", "search",
		"--source", filepath.Join(t.TempDir(), "missing.log"), "-e", "x", "--log-level", "error",
	})
	if code := exitCode(err); code != operation.ExitCodeError {
		t.Errorf("exit code = %d (%v), want %d", code, err, operation.ExitCodeError)
	}
}

func TestPorts(t *testing.T) {
	orig := listPorts
	t.Cleanup(func() { listPorts = orig })
	listPorts = func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyACM1"}, nil }

	var out bytes.Buffer
	if err := newTestApp(&out).Run([]string{"sluice", "ports", "--format", "json"}); err != nil {
		t.Fatalf("ports: %v", err)
	}
	var got []PortResponse
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Name != "/dev/ttyUSB0" {
		t.Errorf("ports = %+v", got)
	}

	listPorts = func() ([]string, error) { return nil, errors.New("no serial support") }
	if err := newTestApp(io.Discard).Run([]string{"sluice", "ports"}); exitCode(err) != 1 {
		t.Errorf("expected exit 1 on enumeration failure, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if err := newTestApp(&out).Run([]string{"sluice", "version", "--format", "json"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	var got VersionResponse
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Commit != "abc123" || got.Version == "" {
		t.Errorf("version = %+v", got)
	}

	if err := newTestApp(io.Discard).Run([]string{"sluice", "version", "--tui"}); exitCode(err) != 1 {
		t.Errorf("expected --tui to be rejected, got %v", err)
	}
}

func TestInspect_Stub(t *testing.T) {
	orig := newReader
	t.Cleanup(func() { newReader = orig })
	stub := reader.NewStubReader()
	stub.Summaries["op-1"] = &reader.OperationSummary{OperationID: "op-1", Kind: "export", Status: "success", Count: 4}
	stub.Matches["op-1"] = []search.ExtractedMatchValue{
		{Index: 3, Values: []search.FilterMatches{{Filter: 0, Values: []string{"v"}}}},
	}
	newReader = func(context.Context, storageChoice) (reader.Reader, error) { return stub, nil }

	var out bytes.Buffer
	if err := newTestApp(&out).Run([]string{"sluice", "inspect", "--format", "json", "op-1"}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var got reader.OperationSummary
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OperationID != "op-1" || got.Count != 4 {
		t.Errorf("summary = %+v", got)
	}

	out.Reset()
	if err := newTestApp(&out).Run([]string{"sluice", "inspect", "--matches", "--format", "table", "op-1"}); err != nil {
		t.Fatalf("inspect --matches: %v", err)
	}
	if !strings.Contains(out.String(), "filter0") {
		t.Errorf("table output = %s", out.String())
	}

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown operation", []string{"op-9"}, operation.ExitCodeError},
		{"missing argument", nil, operation.ExitCodeConfigError},
		{"tui", []string{"--tui", "op-1"}, operation.ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"sluice", "inspect"}, tt.args...)
			if code := exitCode(newTestApp(io.Discard).Run(args)); code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestInspect_RequiresStorage(t *testing.T) {
	err := newTestApp(io.Discard).Run([]string{"sluice", "inspect", "op-1"})
	if code := exitCode(err); code != operation.ExitCodeConfigError {
		t.Errorf("exit code = %d (%v), want %d", code, err, operation.ExitCodeConfigError)
	}
}

func TestInspect_ReadsPublishedSearch(t *testing.T) {
	src := writeSource(t, "temp=40\nidle\ntemp=41\n")
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	reportPath := filepath.Join(dir, "report.json")

	err := newTestApp(io.Discard).Run([]string{"sluice", "search",
		"--source", src, "-e", `temp=(\d+)`, "--regex",
		"--storage-backend", "fs", "--storage-path", store,
		"--report", reportPath, "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var report operation.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report: %v", err)
	}

	var out bytes.Buffer
	err = newTestApp(&out).Run([]string{"sluice", "inspect",
		"--storage-backend", "fs", "--storage-path", store, "--format", "json", report.OperationID,
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var summary reader.OperationSummary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if summary.Kind != "extract" || summary.Status != "success" || summary.Counters.Matches != 2 {
		t.Errorf("summary = %+v", summary)
	}

	out.Reset()
	err = newTestApp(&out).Run([]string{"sluice", "inspect", "--matches",
		"--storage-backend", "fs", "--storage-path", store, "--format", "json", report.OperationID,
	})
	if err != nil {
		t.Fatalf("inspect --matches: %v", err)
	}
	var matches []search.ExtractedMatchValue
	if err := json.Unmarshal(out.Bytes(), &matches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(matches) != 2 || matches[1].Index != 2 || matches[1].Values[0].Values[0] != "41" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestRecords_ReadsBinaryExport(t *testing.T) {
	var frames bytes.Buffer
	for _, rec := range []*frame.Record{
		{Ts: 1000, Level: "info", Message: "boot"},
		{Level: "error", Message: "fan stalled", Fields: map[string]any{"rpm": "0"}},
		{Level: "info", Message: "idle"},
	} {
		if _, err := rec.WriteTo(&frames); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	src := writeSource(t, frames.String())
	dst := filepath.Join(t.TempDir(), "out.bin")

	err := newTestApp(io.Discard).Run([]string{"sluice", "export",
		"--source", src, "--destination", dst, "--parser", "frame", "--binary",
		"--sections", "1-2", "--log-level", "error",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var out bytes.Buffer
	if err := newTestApp(&out).Run([]string{"sluice", "records", "--format", "json", dst}); err != nil {
		t.Fatalf("records: %v", err)
	}
	var rows []RecordRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(rows) != 2 || rows[0].Message != "fan stalled" || rows[0].Fields["rpm"] != "0" || rows[1].Message != "idle" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestDecodeRecords(t *testing.T) {
	good, err := frame.Encode(&frame.Record{Ts: 1000, Message: "ok"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	garbage := []byte{0, 0, 0, 1, 0xc1}

	tests := []struct {
		name        string
		input       []byte
		wantRows    int
		wantSkipped int
		wantErr     bool
	}{
		{"empty", nil, 0, 0, false},
		{"one record", good, 1, 0, false},
		{"undecodable payload is skipped", append(append([]byte{}, garbage...), good...), 1, 1, false},
		{"truncated frame", append(append([]byte{}, good...), good[:len(good)-1]...), 1, 0, true},
		{"truncated prefix", append(append([]byte{}, good...), 0, 0), 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, skipped, err := decodeRecords(bytes.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(rows) != tt.wantRows || skipped != tt.wantSkipped {
				t.Errorf("rows = %d, skipped = %d", len(rows), skipped)
			}
		})
	}

	rows, _, _ := decodeRecords(bytes.NewReader(good))
	if rows[0].Time != "1970-01-01T00:00:01Z" {
		t.Errorf("time = %q", rows[0].Time)
	}
}

func TestRecords_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing argument", nil, operation.ExitCodeConfigError},
		{"missing file", []string{filepath.Join(t.TempDir(), "none.bin")}, operation.ExitCodeError},
		{"tui", []string{"--tui", "x.bin"}, operation.ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"sluice", "records"}, tt.args...)
			if code := exitCode(newTestApp(io.Discard).Run(args)); code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
		})
	}
}
