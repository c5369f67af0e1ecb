package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/mail"
	"github.com/dbops/toolkit/pkg/monitor"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
}

func WriteBackupTable(w io.Writer, summaries []*backup.Summary) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "DATABASE\tSTATUS\tTABLES\tFAILED\tSIZE\tARCHIVE\tDURATION")
	for _, s := range summaries {
		failed := "-"
		if len(s.FailedTables) > 0 {
			failed = strings.Join(s.FailedTables, ",")
		}
		archive := "-"
		if s.ArchiveFile != "" {
			archive = s.ArchiveSize
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			s.Database, s.Status, s.TablesSuccess, s.TablesTotal, failed, s.TotalSize, archive, s.Duration)
	}
	_ = tw.Flush()
}

func WriteStatusTable(w io.Writer, status *monitor.Status) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "UPTIME\tCONNECTED\tMAX_CONNECTIONS\tTIME")
	_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n",
		status.Uptime, status.ThreadsConnected, status.MaxConnections, status.CurrentTime)
	_ = tw.Flush()
}

func WriteSizesTable(w io.Writer, sizes []monitor.DatabaseSize) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "DATABASE\tSIZE\tBYTES")
	for _, s := range sizes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Database, s.Size, s.SizeBytes)
	}
	_ = tw.Flush()
}

func WriteRowsTable(w io.Writer, database string, counts []monitor.TableRowCount) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintf(tw, "TABLE (%s)\tROWS\n", database)
	for _, c := range counts {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", c.Table, c.Rows)
	}
	_ = tw.Flush()
}

func WriteSystemTable(w io.Writer, report *monitor.SystemReport) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "HOST\tOS\tUPTIME\tCPU%\tMEM%\tMEM USED")
	_, _ = fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%.1f\t%.1f\t%s/%s\n",
		report.Hostname, report.OS, report.Platform, report.Uptime,
		report.CPU.UsagePercent, report.Memory.UsedPercent,
		report.Memory.Used, report.Memory.Total)
	_ = tw.Flush()

	if len(report.Disks) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	dw := newTabWriter(w)
	_, _ = fmt.Fprintln(dw, "MOUNT\tFS\tUSED\tFREE\tUSE%")
	for _, d := range report.Disks {
		_, _ = fmt.Fprintf(dw, "%s\t%s\t%s\t%s\t%.1f\n",
			d.Mountpoint, d.Filesystem, d.Used, d.Free, d.UsedPercent)
	}
	_ = dw.Flush()
}

func WriteMailStatsTable(w io.Writer, stats mail.Stats) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "QUEUED\tSENT\tFAILED\tPROCESSED\tWORKERS")
	_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n",
		stats.QueueSize, stats.SentCount, stats.FailedCount, stats.TotalProcessed, stats.ActiveWorkers)
	_ = tw.Flush()
}
