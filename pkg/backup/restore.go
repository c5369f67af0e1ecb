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

	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/metrics"
)

// Restore feeds SQL dumps into the target database via the mysql CLI.
// Source may be a single .sql file, a directory of dumps, or a tar.gz
// archive produced by BackupDatabase.
func (m *Manager) Restore(ctx context.Context, database, source string) error {
	files, cleanup, err := m.collectDumps(source)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		metrics.RestoreRuns.WithLabelValues(database, StatusFailed).Inc()
		return err
	}
	if len(files) == 0 {
		metrics.RestoreRuns.WithLabelValues(database, StatusFailed).Inc()
		return fmt.Errorf("no .sql dumps found in %s", source)
	}

	args := append(m.connectionArgs(), database)
	for _, file := range files {
		if err := m.restoreFile(ctx, file, args); err != nil {
			metrics.RestoreRuns.WithLabelValues(database, StatusFailed).Inc()
			return fmt.Errorf("restoring %s into %s: %w", filepath.Base(file), database, err)
		}
		m.log.Info("restored dump",
			zap.String("database", database),
			zap.String("file", filepath.Base(file)))
	}
	metrics.RestoreRuns.WithLabelValues(database, StatusSuccess).Inc()
	m.log.Info("database restore finished",
		zap.String("database", database),
		zap.Int("files", len(files)))
	return nil
}

func (m *Manager) restoreFile(ctx context.Context, path string, args []string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.runner.RunWithInput(ctx, f, "mysql", args...)
}

// collectDumps resolves the restore source into an ordered list of .sql
// files. Archives are extracted into a temp directory removed by cleanup.
func (m *Manager) collectDumps(source string) (files []string, cleanup func(), err error) {
	fi, err := os.Stat(source)
	if err != nil {
		return nil, nil, fmt.Errorf("restore source: %w", err)
	}

	switch {
	case fi.IsDir():
		files, err = filepath.Glob(filepath.Join(source, "*.sql"))
		if err != nil {
			return nil, nil, err
		}
	case strings.HasSuffix(source, ".tar.gz") || strings.HasSuffix(source, ".tgz"):
		dir, err := os.MkdirTemp("", "dbops-restore-*")
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { os.RemoveAll(dir) }
		files, err = extractArchive(source, dir)
		if err != nil {
			return nil, cleanup, err
		}
	case strings.HasSuffix(source, ".sql"):
		files = []string{source}
	default:
		return nil, nil, fmt.Errorf("unsupported restore source %s, want .sql, directory or .tar.gz", source)
	}

	sort.Strings(files)
	return files, cleanup, nil
}

func extractArchive(archivePath, dest string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	defer gz.Close()

	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".sql") {
			continue
		}
		// flatten, archive entries are prefixed with the database name
		target := filepath.Join(dest, filepath.Base(hdr.Name))
		out, err := os.Create(target)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(out, tr); err != nil { //nolint:gosec
			out.Close()
			return nil, err
		}
		if err := out.Close(); err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}
