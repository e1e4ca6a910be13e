package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// relational serves PostgreSQL, MySQL and SQLite sources through database/sql.
// The concrete driver is picked by connection.driver.
type relational struct {
	cfg    *config.DataSource
	log    *logging.Logger
	driver string
	dsn    string
	db     *sql.DB
	limit  int

	resources resourceSet
}

var sqlDriverNames = map[string]string{
	config.DriverPostgres: "postgres",
	config.DriverMySQL:    "mysql",
	config.DriverSQLite:   "sqlite",
}

var schemaQueries = map[string]string{
	config.DriverPostgres: `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`,
	config.DriverMySQL: `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`,
	config.DriverSQLite: `SELECT name, sql FROM sqlite_master WHERE type = 'table'`,
}

func newRelational(cfg *config.DataSource, log *logging.Logger) (*relational, error) {
	driver := cfg.ConnString("driver")
	if _, ok := sqlDriverNames[driver]; !ok {
		return nil, fmt.Errorf("backend: unknown relational driver %q for %q", driver, cfg.Name)
	}
	dsn, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}
	r := &relational{
		cfg:    cfg,
		log:    log,
		driver: driver,
		dsn:    dsn,
		limit:  cfg.SettingInt("max_rows", 100),
	}
	r.buildResources()
	return r, nil
}

func (r *relational) buildResources() {
	r.resources.add(Resource{
		URI:         fmt.Sprintf("relational://%s/schema", r.cfg.Name),
		Name:        "schema",
		Description: "Tables and columns visible to this source",
		MIMEType:    "application/json",
		Read: func(ctx context.Context) (string, error) {
			return r.runQuery(ctx, schemaQueries[r.driver])
		},
	})
	for _, table := range r.cfg.Tables {
		table := table
		r.resources.add(Resource{
			URI:         fmt.Sprintf("relational://%s/table/%s", r.cfg.Name, table),
			Name:        "table-" + table,
			Description: fmt.Sprintf("First %d rows of table %s", r.limit, table),
			MIMEType:    "application/json",
			Read: func(ctx context.Context) (string, error) {
				return r.runQuery(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, r.limit))
			},
		})
	}
}

func (r *relational) Connect(ctx context.Context) error {
	db, err := sql.Open(sqlDriverNames[r.driver], r.dsn)
	if err != nil {
		return opErr(r.cfg.Name, "Connect", "opening connection", err)
	}
	db.SetMaxOpenConns(r.cfg.SettingInt("max_open_conns", 25))
	db.SetMaxIdleConns(r.cfg.SettingInt("max_idle_conns", 5))
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return opErr(r.cfg.Name, "Connect", "pinging database", err)
	}
	r.db = db
	r.log.Info("connected", logging.Fields{"source": r.cfg.Name, "driver": r.driver})
	return nil
}

func (r *relational) Disconnect(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	if err != nil {
		return opErr(r.cfg.Name, "Disconnect", "closing connection", err)
	}
	return nil
}

func (r *relational) ListResources() []Resource { return r.resources.list() }

func (r *relational) ListTools() []Tool {
	return []Tool{{
		Name:        "execute_query",
		Description: "Execute a SQL statement against this source",
		Args: []ToolArg{
			{Name: "sql", Type: "string", Description: "SQL text to execute", Required: true},
		},
	}}
}

func (r *relational) ReadResource(ctx context.Context, uri string) (string, error) {
	return r.resources.read(ctx, uri)
}

func (r *relational) Execute(ctx context.Context, tool string, args map[string]any) (*ExecResult, error) {
	if tool != "execute_query" {
		return nil, fmt.Errorf("backend: unknown tool %q", tool)
	}
	stmt := stringArg(args, "sql")
	if stmt == "" {
		return errorResult(fmt.Errorf("missing required argument \"sql\"")), nil
	}
	if r.db == nil {
		return errorResult(opErr(r.cfg.Name, "Execute", "not connected", nil)), nil
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "SELECT") {
		out, err := r.runQuery(ctx, stmt)
		if err != nil {
			return errorResult(err), nil
		}
		return &ExecResult{Content: out}, nil
	}
	res, err := r.db.ExecContext(ctx, stmt)
	if err != nil {
		return errorResult(err), nil
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &ExecResult{Content: fmt.Sprintf("Query executed successfully. Rows affected: %d", affected)}, nil
}

// runQuery executes a read-only statement and renders the rows as JSON.
func (r *relational) runQuery(ctx context.Context, stmt string) (string, error) {
	if r.db == nil {
		return "", opErr(r.cfg.Name, "Query", "not connected", nil)
	}
	rows, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return "", opErr(r.cfg.Name, "Query", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", opErr(r.cfg.Name, "Query", "reading columns", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", opErr(r.cfg.Name, "Query", "scanning row", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return "", opErr(r.cfg.Name, "Query", "iterating rows", err)
	}
	return jsonResult(results).Content, nil
}
