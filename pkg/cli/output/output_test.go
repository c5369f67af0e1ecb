package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/mail"
	"github.com/dbops/toolkit/pkg/monitor"
)

func TestWriteObjectJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	err := WriteObject(buf, FormatJSON, map[string]int{"queued": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"queued": 3}`, buf.String())
}

func TestWriteObjectYAML(t *testing.T) {
	buf := &bytes.Buffer{}
	err := WriteObject(buf, FormatYAML, map[string]int{"queued": 3})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "queued: 3")
}

func TestWriteObjectRejectsTable(t *testing.T) {
	err := WriteObject(&bytes.Buffer{}, FormatTable, nil)
	require.Error(t, err)

	err = WriteObject(&bytes.Buffer{}, Format("csv"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestWriteBackupTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteBackupTable(buf, []*backup.Summary{
		{
			Database:      "app",
			Status:        backup.StatusPartial,
			TablesSuccess: 2,
			TablesTotal:   3,
			FailedTables:  []string{"orders"},
			TotalSize:     "1.00 MB",
			Duration:      "2.50s",
		},
	})
	out := buf.String()
	assert.Contains(t, out, "DATABASE")
	assert.Contains(t, out, "app")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "orders")
}

func TestWriteStatusTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteStatusTable(buf, &monitor.Status{
		Uptime:           "5h 0m 0s",
		ThreadsConnected: 3,
		MaxConnections:   151,
		CurrentTime:      "2026-08-29 12:00:00",
	})
	assert.Contains(t, buf.String(), "5h 0m 0s")
	assert.Contains(t, buf.String(), "151")
}

func TestWriteSystemTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteSystemTable(buf, &monitor.SystemReport{
		Hostname: "db-host-1",
		OS:       "linux",
		Platform: "debian",
		Uptime:   "100h 0m 0s",
		Disks: []monitor.DiskReport{
			{Mountpoint: "/", Filesystem: "ext4", Used: "10.00 GB", Free: "40.00 GB", UsedPercent: 20},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "db-host-1")
	assert.Contains(t, out, "MOUNT")
	assert.Contains(t, out, "ext4")
}

func TestWriteMailStatsTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteMailStatsTable(buf, mail.Stats{QueueSize: 1, SentCount: 10, FailedCount: 2, TotalProcessed: 12, ActiveWorkers: 3})
	assert.Contains(t, buf.String(), "QUEUED")
	assert.Contains(t, buf.String(), "10")
}
