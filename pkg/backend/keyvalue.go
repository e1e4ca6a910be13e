package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// keyValue serves Redis-style key-value stores.
type keyValue struct {
	cfg    *config.DataSource
	log    *logging.Logger
	client *redis.Client
	limit  int

	resources resourceSet
}

func newKeyValue(cfg *config.DataSource, log *logging.Logger) (*keyValue, error) {
	if cfg.ConnString("host") == "" {
		return nil, opErr(cfg.Name, "New", "connection field \"host\" is required", nil)
	}
	k := &keyValue{
		cfg:   cfg,
		log:   log,
		limit: cfg.SettingInt("max_keys", 100),
	}
	k.buildResources()
	return k, nil
}

func (k *keyValue) buildResources() {
	k.resources.add(Resource{
		URI:         fmt.Sprintf("keyvalue://%s/info", k.cfg.Name),
		Name:        "info",
		Description: "Server information",
		MIMEType:    "text/plain",
		Read: func(ctx context.Context) (string, error) {
			if k.client == nil {
				return "", opErr(k.cfg.Name, "Read", "not connected", nil)
			}
			info, err := k.client.Info(ctx, "server").Result()
			if err != nil {
				return "", opErr(k.cfg.Name, "Read", "reading server info", err)
			}
			return info, nil
		},
	})
	k.resources.add(Resource{
		URI:         fmt.Sprintf("keyvalue://%s/keys", k.cfg.Name),
		Name:        "keys",
		Description: fmt.Sprintf("First %d keys in the database", k.limit),
		MIMEType:    "application/json",
		Read: func(ctx context.Context) (string, error) {
			if k.client == nil {
				return "", opErr(k.cfg.Name, "Read", "not connected", nil)
			}
			keys, _, err := k.client.Scan(ctx, 0, "*", int64(k.limit)).Result()
			if err != nil {
				return "", opErr(k.cfg.Name, "Read", "scanning keys", err)
			}
			return jsonResult(keys).Content, nil
		},
	})
}

func (k *keyValue) Connect(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", k.cfg.ConnString("host"), k.cfg.ConnInt("port")),
		Password:     k.cfg.ConnString("password"),
		DB:           k.cfg.ConnInt("db"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return opErr(k.cfg.Name, "Connect", "pinging server", err)
	}
	k.client = client
	k.log.Info("connected", logging.Fields{"source": k.cfg.Name, "db": k.cfg.ConnInt("db")})
	return nil
}

func (k *keyValue) Disconnect(ctx context.Context) error {
	if k.client == nil {
		return nil
	}
	err := k.client.Close()
	k.client = nil
	if err != nil {
		return opErr(k.cfg.Name, "Disconnect", "closing client", err)
	}
	return nil
}

func (k *keyValue) ListResources() []Resource { return k.resources.list() }

func (k *keyValue) ListTools() []Tool {
	return []Tool{
		{
			Name:        "get_key",
			Description: "Read the value stored at a key",
			Args: []ToolArg{
				{Name: "key", Type: "string", Description: "Key to read", Required: true},
			},
		},
		{
			Name:        "set_key",
			Description: "Store a string value at a key",
			Args: []ToolArg{
				{Name: "key", Type: "string", Description: "Key to write", Required: true},
				{Name: "value", Type: "string", Description: "Value to store", Required: true},
			},
		},
		{
			Name:        "delete_key",
			Description: "Delete a key",
			Args: []ToolArg{
				{Name: "key", Type: "string", Description: "Key to delete", Required: true},
			},
		},
	}
}

func (k *keyValue) ReadResource(ctx context.Context, uri string) (string, error) {
	return k.resources.read(ctx, uri)
}

func (k *keyValue) Execute(ctx context.Context, tool string, args map[string]any) (*ExecResult, error) {
	key := stringArg(args, "key")
	if key == "" {
		return errorResult(fmt.Errorf("missing required argument \"key\"")), nil
	}
	if k.client == nil {
		return errorResult(opErr(k.cfg.Name, "Execute", "not connected", nil)), nil
	}
	switch tool {
	case "get_key":
		val, err := k.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return &ExecResult{Content: "(nil)"}, nil
		}
		if err != nil {
			return errorResult(err), nil
		}
		return &ExecResult{Content: val}, nil
	case "set_key":
		if err := k.client.Set(ctx, key, stringArg(args, "value"), 0).Err(); err != nil {
			return errorResult(err), nil
		}
		return &ExecResult{Content: "Set successfully. Keys affected: 1"}, nil
	case "delete_key":
		n, err := k.client.Del(ctx, key).Result()
		if err != nil {
			return errorResult(err), nil
		}
		return &ExecResult{Content: fmt.Sprintf("Deleted successfully. Keys affected: %d", n)}, nil
	default:
		return nil, fmt.Errorf("backend: unknown tool %q", tool)
	}
}
