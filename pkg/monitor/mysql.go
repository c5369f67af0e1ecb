package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/metrics"
)

// systemSchemas are excluded from size and row reports.
var systemSchemas = map[string]bool{
	"mysql":              true,
	"sys":                true,
	"performance_schema": true,
	"information_schema": true,
}

// Status is a snapshot of server-level MySQL health.
type Status struct {
	CurrentTime      string `json:"current_time"`
	Uptime           string `json:"uptime"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	ThreadsConnected int    `json:"threads_connected"`
	MaxConnections   int    `json:"max_connections"`
}

// DatabaseSize is the on-disk footprint of one schema.
type DatabaseSize struct {
	Database  string `json:"database"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
}

// TableRowCount is the approximate row count of one table.
type TableRowCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Column is one row of a DESCRIBE result.
type Column struct {
	Field   string  `json:"field"`
	Type    string  `json:"type"`
	Null    string  `json:"null"`
	Key     string  `json:"key"`
	Default *string `json:"default"`
	Extra   string  `json:"extra"`
}

// MySQLMonitor reads status and schema statistics off a MySQL server.
type MySQLMonitor struct {
	db        *sql.DB
	databases []string
	log       *zap.Logger
}

// NewMySQLMonitor opens a pooled connection to the configured server. The
// connection is lazy, the first query dials.
func NewMySQLMonitor(cfg config.MySQL, log *zap.Logger) (*MySQLMonitor, error) {
	db, err := sql.Open("mysql", cfg.DSN(""))
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &MySQLMonitor{db: db, databases: cfg.Databases, log: log.Named("monitor")}, nil
}

// NewMySQLMonitorWithDB wraps an existing connection, used by tests.
func NewMySQLMonitorWithDB(db *sql.DB, databases []string, log *zap.Logger) *MySQLMonitor {
	return &MySQLMonitor{db: db, databases: databases, log: log.Named("monitor")}
}

// Close releases the connection pool.
func (m *MySQLMonitor) Close() error { return m.db.Close() }

// Ping verifies the server is reachable.
func (m *MySQLMonitor) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLMonitor) globalValue(ctx context.Context, query string) (string, error) {
	var name, value string
	if err := m.db.QueryRowContext(ctx, query).Scan(&name, &value); err != nil {
		return "", err
	}
	return value, nil
}

// Status reads uptime, connection usage and the connection limit. The
// monitor's own session is subtracted from the connected-threads count.
func (m *MySQLMonitor) Status(ctx context.Context) (*Status, error) {
	metrics.MonitorQueries.WithLabelValues("status").Inc()

	uptimeRaw, err := m.globalValue(ctx, "SHOW GLOBAL STATUS LIKE 'Uptime'")
	if err != nil {
		metrics.MonitorQueryErrors.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("reading uptime: %w", err)
	}
	uptimeSeconds, _ := strconv.ParseInt(uptimeRaw, 10, 64)

	threadsRaw, err := m.globalValue(ctx, "SHOW GLOBAL STATUS LIKE 'Threads_connected'")
	if err != nil {
		metrics.MonitorQueryErrors.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("reading threads_connected: %w", err)
	}
	threads, _ := strconv.Atoi(threadsRaw)
	if threads > 0 {
		threads--
	}

	maxRaw, err := m.globalValue(ctx, "SHOW VARIABLES LIKE 'max_connections'")
	if err != nil {
		metrics.MonitorQueryErrors.WithLabelValues("status").Inc()
		return nil, fmt.Errorf("reading max_connections: %w", err)
	}
	maxConnections, _ := strconv.Atoi(maxRaw)

	return &Status{
		CurrentTime:      time.Now().Format("2006-01-02 15:04:05"),
		Uptime:           FormatUptime(uptimeSeconds),
		UptimeSeconds:    uptimeSeconds,
		ThreadsConnected: threads,
		MaxConnections:   maxConnections,
	}, nil
}

// DatabaseSizes reports data plus index size per schema, system schemas
// excluded.
func (m *MySQLMonitor) DatabaseSizes(ctx context.Context) ([]DatabaseSize, error) {
	metrics.MonitorQueries.WithLabelValues("sizes").Inc()

	rows, err := m.db.QueryContext(ctx, `
		SELECT table_schema, COALESCE(SUM(data_length + index_length), 0)
		FROM information_schema.tables
		GROUP BY table_schema
		ORDER BY table_schema`)
	if err != nil {
		metrics.MonitorQueryErrors.WithLabelValues("sizes").Inc()
		return nil, fmt.Errorf("reading database sizes: %w", err)
	}
	defer rows.Close()

	var sizes []DatabaseSize
	for rows.Next() {
		var name string
		var bytes int64
		if err := rows.Scan(&name, &bytes); err != nil {
			return nil, err
		}
		if systemSchemas[name] {
			continue
		}
		sizes = append(sizes, DatabaseSize{
			Database:  name,
			SizeBytes: bytes,
			Size:      backup.FormatSize(bytes),
		})
	}
	return sizes, rows.Err()
}

// TableRows reports the approximate row count of every table in the schema.
func (m *MySQLMonitor) TableRows(ctx context.Context, database string) ([]TableRowCount, error) {
	metrics.MonitorQueries.WithLabelValues("rows").Inc()

	rows, err := m.db.QueryContext(ctx, `
		SELECT table_name, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`, database)
	if err != nil {
		metrics.MonitorQueryErrors.WithLabelValues("rows").Inc()
		return nil, fmt.Errorf("reading table rows of %s: %w", database, err)
	}
	defer rows.Close()

	var counts []TableRowCount
	for rows.Next() {
		var c TableRowCount
		if err := rows.Scan(&c.Table, &c.Rows); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// AllTableRows reports row counts for every configured database.
func (m *MySQLMonitor) AllTableRows(ctx context.Context) (map[string][]TableRowCount, error) {
	all := map[string][]TableRowCount{}
	for _, database := range m.databases {
		counts, err := m.TableRows(ctx, database)
		if err != nil {
			m.log.Error("table row report failed", zap.String("database", database), zap.Error(err))
			continue
		}
		all[database] = counts
	}
	return all, nil
}

// TableStructure describes the columns of one table.
func (m *MySQLMonitor) TableStructure(ctx context.Context, database, table string) ([]Column, error) {
	metrics.MonitorQueries.WithLabelValues("structure").Inc()

	rows, err := m.db.QueryContext(ctx, fmt.Sprintf("DESCRIBE `%s`.`%s`", database, table))
	if err != nil {
		metrics.MonitorQueryErrors.WithLabelValues("structure").Inc()
		return nil, fmt.Errorf("describing %s.%s: %w", database, table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Field, &c.Type, &c.Null, &c.Key, &c.Default, &c.Extra); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// FormatUptime renders seconds as "1h 2m 3s" style uptime.
func FormatUptime(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
