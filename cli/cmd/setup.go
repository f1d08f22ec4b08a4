package cmd

import (
	"context"
	"fmt"

	"github.com/drover-io/drover/adapter"
	redisadapter "github.com/drover-io/drover/adapter/redis"
	"github.com/drover-io/drover/adapter/webhook"
	"github.com/drover-io/drover/bridge"
	"github.com/drover-io/drover/cli/config"
	"github.com/drover-io/drover/storage"
)

// buildDialer selects the channel transport from config.
func buildDialer(cfg *config.Config) bridge.Dialer {
	if cfg.Channel.Kind == "tcp" {
		return bridge.TCPDialer(cfg.Channel.Addr)
	}
	return bridge.StdioDialer()
}

// buildAdapter constructs the notification adapter, nil when none is
// configured.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	adapterCfg := cfg.Adapter
	switch adapterCfg.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if adapterCfg.Retries != nil {
			retries = *adapterCfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     adapterCfg.URL,
			Headers: adapterCfg.Headers,
			Timeout: adapterCfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := redisadapter.DefaultRetries
		if adapterCfg.Retries != nil {
			retries = *adapterCfg.Retries
		}
		return redisadapter.New(redisadapter.Config{
			URL:     adapterCfg.URL,
			Channel: adapterCfg.Channel,
			Timeout: adapterCfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterCfg.Type)
	}
}

// buildArchiver constructs the result-log archiver, nil when archiving
// is not configured.
func buildArchiver(ctx context.Context, cfg *config.Config) (*storage.Archiver, error) {
	switch cfg.Archive.Backend {
	case "":
		return nil, nil
	case "s3":
		return storage.NewArchiver(ctx, storage.S3Config{
			Bucket:       cfg.Archive.Bucket,
			Prefix:       cfg.Archive.Prefix,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q (must be s3)", cfg.Archive.Backend)
	}
}
