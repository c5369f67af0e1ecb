package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/metrics"
)

// timestampLayout names backup directories; cleanup parses it back.
const timestampLayout = "20060102_150405"

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Summary describes the outcome of one database backup.
type Summary struct {
	Database       string   `json:"database"`
	Timestamp      string   `json:"timestamp"`
	BackupDir      string   `json:"backup_dir"`
	ArchiveFile    string   `json:"archive_file,omitempty"`
	TablesTotal    int      `json:"tables_total"`
	TablesSuccess  int      `json:"tables_success"`
	TablesFailed   int      `json:"tables_failed"`
	SuccessTables  []string `json:"success_tables"`
	FailedTables   []string `json:"failed_tables"`
	TotalSize      string   `json:"total_size"`
	ArchiveSize    string   `json:"archive_size"`
	RawSize        int64    `json:"raw_size"`
	ArchiveRawSize int64    `json:"archive_raw_size"`
	Duration       string   `json:"duration"`
	Compress       bool     `json:"compress"`
	Status         string   `json:"status"`
}

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	DeletedDirs int `json:"deleted_dirs"`
}

// Manager runs per-table mysqldump backups into timestamped directories
// under the configured backup path, one subtree per database.
type Manager struct {
	cfg    config.Backup
	mysql  config.MySQL
	runner Runner
	log    *zap.Logger
	now    func() time.Time
}

// NewManager wires a backup manager with the default exec-based runner.
func NewManager(cfg config.Backup, mysql config.MySQL, log *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		mysql:  mysql,
		runner: NewRunner(),
		log:    log.Named("backup"),
		now:    time.Now,
	}
}

// CheckTools verifies the MySQL client binaries are on PATH.
func (m *Manager) CheckTools() error {
	for _, tool := range []string{"mysql", "mysqldump"} {
		if _, err := m.runner.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found, install the MySQL client tools: %w", tool, err)
		}
	}
	return nil
}

// connectionArgs builds the shared mysql/mysqldump connection flags. Host
// and port are omitted at their defaults so local socket connections keep
// working.
func (m *Manager) connectionArgs() []string {
	var args []string
	if m.mysql.Host != "" && m.mysql.Host != "localhost" {
		args = append(args, "-h", m.mysql.Host)
	}
	if m.mysql.Port != 0 && m.mysql.Port != 3306 {
		args = append(args, "-P", fmt.Sprintf("%d", m.mysql.Port))
	}
	if m.mysql.User != "" {
		args = append(args, "-u", m.mysql.User)
	}
	if m.mysql.Password != "" {
		args = append(args, "--password="+m.mysql.Password)
	}
	return args
}

// Tables lists the tables of a database via the mysql CLI.
func (m *Manager) Tables(ctx context.Context, database string) ([]string, error) {
	args := append(m.connectionArgs(), "-N", "-e", fmt.Sprintf("SHOW TABLES FROM `%s`", database))
	out, err := m.runner.Run(ctx, "mysql", args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables of %s: %w", database, err)
	}
	var tables []string
	for _, line := range strings.Split(string(out), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

func (m *Manager) dumpTable(ctx context.Context, database, table, dir string) error {
	args := append(m.connectionArgs(),
		"--single-transaction",
		"--skip-lock-tables",
		"--default-character-set=utf8mb4",
		database,
		table)
	return m.runner.RunToFile(ctx, filepath.Join(dir, table+".sql"), "mysqldump", args...)
}

// BackupDatabase dumps every table of the database into a fresh timestamped
// directory and, when configured, packs the dumps into a tar.gz archive.
// Per-table failures degrade the status to partial instead of aborting.
func (m *Manager) BackupDatabase(ctx context.Context, database string) (*Summary, error) {
	start := m.now()
	timestamp := start.Format(timestampLayout)
	dir := filepath.Join(m.cfg.Path, database, timestamp)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		metrics.BackupRuns.WithLabelValues(database, StatusFailed).Inc()
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	tables, err := m.Tables(ctx, database)
	if err != nil {
		metrics.BackupRuns.WithLabelValues(database, StatusFailed).Inc()
		return nil, err
	}
	if len(tables) == 0 {
		metrics.BackupRuns.WithLabelValues(database, StatusFailed).Inc()
		return nil, fmt.Errorf("database %s has no tables or is not accessible", database)
	}

	summary := &Summary{
		Database:    database,
		Timestamp:   timestamp,
		BackupDir:   dir,
		TablesTotal: len(tables),
		Compress:    m.cfg.Compress,
	}
	for _, table := range tables {
		if err := m.dumpTable(ctx, database, table, dir); err != nil {
			m.log.Error("table backup failed",
				zap.String("database", database),
				zap.String("table", table),
				zap.Error(err))
			summary.FailedTables = append(summary.FailedTables, table)
			metrics.BackupTablesFailed.WithLabelValues(database).Inc()
			continue
		}
		summary.SuccessTables = append(summary.SuccessTables, table)
		metrics.BackupTablesDumped.WithLabelValues(database).Inc()
		if fi, err := os.Stat(filepath.Join(dir, table+".sql")); err == nil {
			summary.RawSize += fi.Size()
		}
	}
	summary.TablesSuccess = len(summary.SuccessTables)
	summary.TablesFailed = len(summary.FailedTables)

	if m.cfg.Compress && summary.TablesSuccess > 0 {
		archive := filepath.Join(dir, fmt.Sprintf("%s_%s.tar.gz", database, timestamp))
		if err := m.archive(dir, database, archive); err != nil {
			m.log.Error("archive creation failed", zap.String("database", database), zap.Error(err))
		} else {
			summary.ArchiveFile = archive
			if fi, err := os.Stat(archive); err == nil {
				summary.ArchiveRawSize = fi.Size()
			}
		}
	}

	summary.TotalSize = FormatSize(summary.RawSize)
	summary.ArchiveSize = FormatSize(summary.ArchiveRawSize)
	summary.Duration = fmt.Sprintf("%.2fs", m.now().Sub(start).Seconds())
	summary.Status = StatusSuccess
	if summary.TablesFailed > 0 {
		summary.Status = StatusPartial
	}
	metrics.BackupRuns.WithLabelValues(database, summary.Status).Inc()

	m.log.Info("database backup finished",
		zap.String("database", database),
		zap.String("status", summary.Status),
		zap.Int("tables", summary.TablesTotal),
		zap.Int("failed", summary.TablesFailed),
		zap.String("size", summary.TotalSize),
		zap.String("duration", summary.Duration))
	return summary, nil
}

// BackupAll backs up every configured database. A failing database does not
// stop the others; its error is attached to a failed summary.
func (m *Manager) BackupAll(ctx context.Context) []*Summary {
	var summaries []*Summary
	for _, database := range m.mysql.Databases {
		summary, err := m.BackupDatabase(ctx, database)
		if err != nil {
			m.log.Error("database backup failed", zap.String("database", database), zap.Error(err))
			summaries = append(summaries, &Summary{
				Database: database,
				Status:   StatusFailed,
			})
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// archive packs the .sql dumps of dir into a tar.gz at archivePath, entries
// prefixed with the database name.
func (m *Manager) archive(dir, database, archivePath string) error {
	dumps, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(dumps)

	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, dump := range dumps {
		if err := addFile(tw, dump, database+"/"+filepath.Base(dump)); err != nil {
			tw.Close()
			gz.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func addFile(tw *tar.Writer, path, name string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// Cleanup removes backup directories older than keepDays or beyond the
// newest keepCount per database, whichever strikes first. Directories whose
// name does not parse as a backup timestamp are left alone.
func (m *Manager) Cleanup(keepDays, keepCount int) (CleanupResult, error) {
	var result CleanupResult
	cutoff := m.now().AddDate(0, 0, -keepDays)

	entries, err := os.ReadDir(m.cfg.Path)
	if err != nil {
		return result, fmt.Errorf("reading backup path: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dbDir := filepath.Join(m.cfg.Path, entry.Name())
		runs, err := os.ReadDir(dbDir)
		if err != nil {
			continue
		}

		var names []string
		for _, run := range runs {
			if run.IsDir() {
				names = append(names, run.Name())
			}
		}
		// newest first, timestamps sort lexically
		sort.Sort(sort.Reverse(sort.StringSlice(names)))

		for idx, name := range names {
			ts, err := time.ParseInLocation(timestampLayout, name, time.Local)
			if err != nil {
				continue
			}
			if ts.Before(cutoff) || idx >= keepCount {
				target := filepath.Join(dbDir, name)
				if err := os.RemoveAll(target); err != nil {
					m.log.Warn("failed to delete old backup", zap.String("dir", target), zap.Error(err))
					continue
				}
				result.DeletedDirs++
				m.log.Info("deleted old backup", zap.String("dir", target))
			}
		}
	}
	m.log.Info("backup cleanup finished", zap.Int("deletedDirs", result.DeletedDirs))
	return result, nil
}

// FormatSize renders a byte count human readable, two decimals, B through PB.
func FormatSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f PB", value)
}
