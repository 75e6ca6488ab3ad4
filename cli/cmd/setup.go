package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/adapter/redis"
	"github.com/pithecene-io/sluice/adapter/webhook"
	sluiceconfig "github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/lode"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/operation"
)

// storageChoice holds resolved Lode storage configuration.
type storageChoice struct {
	backend     string // "fs" or "s3"; empty disables publishing
	path        string // fs: directory, s3: bucket/prefix
	dataset     string
	source      string
	region      string
	endpoint    string
	s3PathStyle bool
}

func resolveStorage(c *cli.Context, cfg *sluiceconfig.Config) (storageChoice, error) {
	sc := configVal(cfg, func(c *sluiceconfig.Config) sluiceconfig.StorageConfig { return c.Storage })
	choice := storageChoice{
		backend:     resolveString(c, "storage-backend", sc.Backend),
		path:        resolveString(c, "storage-path", sc.Path),
		dataset:     resolveString(c, "storage-dataset", sc.Dataset),
		source:      resolveString(c, "storage-source", sc.Source),
		region:      resolveString(c, "storage-region", sc.Region),
		endpoint:    resolveString(c, "storage-endpoint", sc.Endpoint),
		s3PathStyle: resolveBool(c, "storage-s3-path-style", sc.S3PathStyle),
	}
	switch choice.backend {
	case "":
		if choice.path != "" {
			return choice, fmt.Errorf("--storage-backend is required when --storage-path is set (fs or s3)")
		}
	case "fs", "s3":
		if choice.path == "" {
			return choice, fmt.Errorf("--storage-path is required when --storage-backend=%s", choice.backend)
		}
	default:
		return choice, fmt.Errorf("unknown --storage-backend %q (must be fs or s3)", choice.backend)
	}
	return choice, nil
}

// buildPublisher creates the Lode publisher for the storage choice, or nil
// when storage is disabled.
func buildPublisher(ctx context.Context, choice storageChoice) (lode.Publisher, error) {
	cfg := lode.Config{Dataset: choice.dataset, Source: choice.source}

	var client *lode.Client
	var err error
	switch choice.backend {
	case "":
		return nil, nil
	case "fs":
		if err := os.MkdirAll(choice.path, 0o755); err != nil {
			return nil, fmt.Errorf("storage path %s: %w", choice.path, err)
		}
		client, err = lode.NewClient(cfg, choice.path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(choice.path)
		client, err = lode.NewS3Client(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.s3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", choice.backend)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	encoding    string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfigWithPrecedence resolves adapter settings with CLI
// flags taking precedence over the config file.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *sluiceconfig.Config, adapterType string) (*adapterChoice, error) {
	ac := configVal(cfg, func(c *sluiceconfig.Config) sluiceconfig.AdapterConfig { return c.Adapter })

	choice := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", ac.URL),
		channel:     resolveString(c, "adapter-channel", ac.Channel),
		encoding:    resolveString(c, "adapter-encoding", ac.Encoding),
		timeout:     resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		retries:     c.Int("adapter-retries"),
		headers:     make(map[string]string, len(ac.Headers)),
	}
	if !c.IsSet("adapter-retries") && ac.Retries != nil {
		choice.retries = *ac.Retries
	}

	for k, v := range ac.Headers {
		choice.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: expected key=value", h)
		}
		choice.headers[k] = v
	}

	switch adapterType {
	case "webhook", "redis":
		if choice.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=%s", adapterType)
		}
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
	return choice, nil
}

func buildAdapter(choice *adapterChoice) (adapter.Adapter, error) {
	switch choice.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:      choice.url,
			Headers:  choice.headers,
			Encoding: choice.encoding,
			Timeout:  choice.timeout,
			Retries:  choice.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", choice.adapterType)
	}
}

// resolveSources parses --source values (or the config file sources) and
// applies the shared transport settings.
func resolveSources(c *cli.Context, cfg *sluiceconfig.Config) ([]operation.SourceSpec, error) {
	raw := resolveStringSlice(c, "source", configVal(cfg, (*sluiceconfig.Config).SourceList))
	if len(raw) == 0 {
		return nil, fmt.Errorf("--source is required (or set source in the config file)")
	}

	serial := configVal(cfg, func(c *sluiceconfig.Config) sluiceconfig.SerialConfig { return c.Serial })
	baud := resolveInt(c, "baud", serial.BaudRate)
	timeout := resolveDuration(c, "read-timeout", serial.Timeout.Duration)

	var ports []uint16
	if c.IsSet("port") {
		for _, p := range c.IntSlice("port") {
			if p <= 0 || p > 65535 {
				return nil, fmt.Errorf("invalid --port %d: must be 1-65535", p)
			}
			ports = append(ports, uint16(p))
		}
	} else {
		ports = configVal(cfg, func(c *sluiceconfig.Config) []uint16 { return c.Ports })
	}

	specs := make([]operation.SourceSpec, 0, len(raw))
	for _, s := range raw {
		spec, err := operation.ParseSourceSpec(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --source %q: %w", s, err)
		}
		spec.Timeout = timeout
		if spec.Kind == operation.SourceSerial {
			spec.BaudRate = baud
		}
		if spec.Kind == operation.SourceUDP {
			spec.Ports = ports
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// operationEnv is everything an export or search action needs besides its
// own request: the runner and the cleanup of what the runner holds.
type operationEnv struct {
	cfg     *sluiceconfig.Config
	runner  *operation.Runner
	log     *log.SugaredLogger
	cleanup func()
}

// setupOperation loads config and wires storage and adapters into a runner.
// Errors are configuration errors.
func setupOperation(ctx context.Context, c *cli.Context) (*operationEnv, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	storage, err := resolveStorage(c, cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := buildPublisher(ctx, storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage publisher: %w", err)
	}

	var notifier adapter.Adapter
	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *sluiceconfig.Config) string { return c.Adapter.Type }))
	if adapterType != "" {
		choice, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			closePublisher(publisher)
			return nil, err
		}
		if notifier, err = buildAdapter(choice); err != nil {
			closePublisher(publisher)
			return nil, fmt.Errorf("failed to create adapter: %w", err)
		}
	}

	level := resolveString(c, "log-level", configVal(cfg, func(c *sluiceconfig.Config) string { return c.Log.Level }))
	opts := []operation.Option{operation.WithLogOutput(c.App.ErrWriter, level)}
	if publisher != nil {
		opts = append(opts, operation.WithPublisher(publisher))
	}
	if notifier != nil {
		opts = append(opts, operation.WithAdapter(notifier))
	}
	if storage.source != "" {
		opts = append(opts, operation.WithSourceName(storage.source))
	}

	return &operationEnv{
		cfg:    cfg,
		runner: operation.NewRunner(opts...),
		log:    log.NewLoggerWithLevel(nil, c.App.ErrWriter, level).With("cli").Sugar(),
		cleanup: func() {
			closePublisher(publisher)
			if notifier != nil {
				iox.DiscardErr(notifier.Close)
			}
		},
	}, nil
}

func closePublisher(p lode.Publisher) {
	if p != nil {
		iox.DiscardErr(p.Close)
	}
}
