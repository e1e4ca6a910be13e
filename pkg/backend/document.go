package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// document serves MongoDB-style document stores.
type document struct {
	cfg    *config.DataSource
	log    *logging.Logger
	uri    string
	dbName string
	client *mongo.Client
	db     *mongo.Database
	limit  int

	resources resourceSet
}

func newDocument(cfg *config.DataSource, log *logging.Logger) (*document, error) {
	if cfg.ConnString("host") == "" {
		return nil, opErr(cfg.Name, "New", "connection field \"host\" is required", nil)
	}
	if cfg.ConnString("database") == "" {
		return nil, opErr(cfg.Name, "New", "connection field \"database\" is required", nil)
	}
	uri, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}
	d := &document{
		cfg:    cfg,
		log:    log,
		uri:    uri,
		dbName: cfg.ConnString("database"),
		limit:  cfg.SettingInt("max_documents", 100),
	}
	d.buildResources()
	return d, nil
}

func (d *document) buildResources() {
	d.resources.add(Resource{
		URI:         fmt.Sprintf("document://%s/collections", d.cfg.Name),
		Name:        "collections",
		Description: "Collection names in this database",
		MIMEType:    "application/json",
		Read: func(ctx context.Context) (string, error) {
			if d.db == nil {
				return "", opErr(d.cfg.Name, "Read", "not connected", nil)
			}
			names, err := d.db.ListCollectionNames(ctx, bson.D{})
			if err != nil {
				return "", opErr(d.cfg.Name, "Read", "listing collections", err)
			}
			return jsonResult(names).Content, nil
		},
	})
	for _, coll := range d.cfg.Collections {
		coll := coll
		d.resources.add(Resource{
			URI:         fmt.Sprintf("document://%s/collection/%s", d.cfg.Name, coll),
			Name:        "collection-" + coll,
			Description: fmt.Sprintf("First %d documents of collection %s", d.limit, coll),
			MIMEType:    "application/json",
			Read: func(ctx context.Context) (string, error) {
				return d.findDocuments(ctx, coll, bson.M{}, int64(d.limit))
			},
		})
	}
}

func (d *document) Connect(ctx context.Context) error {
	opts := options.Client().ApplyURI(d.uri).
		SetMaxPoolSize(uint64(d.cfg.SettingInt("max_pool_size", 100))).
		SetMinPoolSize(uint64(d.cfg.SettingInt("min_pool_size", 10)))
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return opErr(d.cfg.Name, "Connect", "dialing", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return opErr(d.cfg.Name, "Connect", "pinging server", err)
	}
	d.client = client
	d.db = client.Database(d.dbName)
	d.log.Info("connected", logging.Fields{"source": d.cfg.Name, "database": d.dbName})
	return nil
}

func (d *document) Disconnect(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect(ctx)
	d.client = nil
	d.db = nil
	if err != nil {
		return opErr(d.cfg.Name, "Disconnect", "closing client", err)
	}
	return nil
}

func (d *document) ListResources() []Resource { return d.resources.list() }

func (d *document) ListTools() []Tool {
	return []Tool{
		{
			Name:        "find_documents",
			Description: "Find documents matching a JSON filter",
			Args: []ToolArg{
				{Name: "collection", Type: "string", Description: "Collection to query", Required: true},
				{Name: "filter", Type: "string", Description: "JSON filter document", Required: false},
				{Name: "limit", Type: "integer", Description: "Maximum documents to return", Required: false},
			},
		},
		{
			Name:        "count_documents",
			Description: "Count documents matching a JSON filter",
			Args: []ToolArg{
				{Name: "collection", Type: "string", Description: "Collection to query", Required: true},
				{Name: "filter", Type: "string", Description: "JSON filter document", Required: false},
			},
		},
		{
			Name:        "insert_document",
			Description: "Insert one JSON document",
			Args: []ToolArg{
				{Name: "collection", Type: "string", Description: "Target collection", Required: true},
				{Name: "document", Type: "string", Description: "JSON document to insert", Required: true},
			},
		},
	}
}

func (d *document) ReadResource(ctx context.Context, uri string) (string, error) {
	return d.resources.read(ctx, uri)
}

func (d *document) Execute(ctx context.Context, tool string, args map[string]any) (*ExecResult, error) {
	coll := stringArg(args, "collection")
	if coll == "" {
		return errorResult(fmt.Errorf("missing required argument \"collection\"")), nil
	}
	if d.db == nil {
		return errorResult(opErr(d.cfg.Name, "Execute", "not connected", nil)), nil
	}
	switch tool {
	case "find_documents":
		filter, err := decodeFilter(stringArg(args, "filter"))
		if err != nil {
			return errorResult(err), nil
		}
		limit := int64(intArg(args, "limit", d.limit))
		out, err := d.findDocuments(ctx, coll, filter, limit)
		if err != nil {
			return errorResult(err), nil
		}
		return &ExecResult{Content: out}, nil
	case "count_documents":
		filter, err := decodeFilter(stringArg(args, "filter"))
		if err != nil {
			return errorResult(err), nil
		}
		n, err := d.db.Collection(coll).CountDocuments(ctx, filter)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(map[string]any{"count": n}), nil
	case "insert_document":
		var doc bson.M
		if err := json.Unmarshal([]byte(stringArg(args, "document")), &doc); err != nil {
			return errorResult(fmt.Errorf("invalid document: %w", err)), nil
		}
		if _, err := d.db.Collection(coll).InsertOne(ctx, doc); err != nil {
			return errorResult(err), nil
		}
		return &ExecResult{Content: "Inserted successfully. Documents affected: 1"}, nil
	default:
		return nil, fmt.Errorf("backend: unknown tool %q", tool)
	}
}

func (d *document) findDocuments(ctx context.Context, coll string, filter bson.M, limit int64) (string, error) {
	if d.db == nil {
		return "", opErr(d.cfg.Name, "Query", "not connected", nil)
	}
	cur, err := d.db.Collection(coll).Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return "", opErr(d.cfg.Name, "Query", "find failed", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return "", opErr(d.cfg.Name, "Query", "decoding documents", err)
	}
	normalized := make([]any, len(docs))
	for i, doc := range docs {
		normalized[i] = normalizeBSON(doc)
	}
	return jsonResult(normalized).Content, nil
}

func decodeFilter(raw string) (bson.M, error) {
	if raw == "" {
		return bson.M{}, nil
	}
	var filter bson.M
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return filter, nil
}

// normalizeBSON converts driver-native values into plain structured values;
// in particular ObjectIDs leave the capability boundary as strings.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case bson.M:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalizeBSON(vv)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalizeBSON(vv)
		}
		return out
	default:
		return v
	}
}
