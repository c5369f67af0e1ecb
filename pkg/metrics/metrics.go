package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mail dispatcher metrics
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_mail_queued_total",
		Help: "Total number of mail tasks accepted into the dispatch queue",
	}, []string{"kind"})
	MailSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_mail_sent_total",
		Help: "Total number of mail tasks delivered successfully",
	}, []string{"kind"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_mail_failed_total",
		Help: "Total number of mail tasks dropped after exhausting retries",
	}, []string{"kind"})
	MailRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_mail_retry_scheduled_total",
		Help: "Total number of delayed re-enqueues scheduled after a failed delivery",
	}, []string{"kind"})
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_mail_send_success_total",
		Help: "Total number of successful SMTP delivery attempts",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_mail_send_failure_total",
		Help: "Total number of failed SMTP delivery attempts",
	}, []string{"host"})

	// Backup metrics
	BackupRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_backup_runs_total",
		Help: "Total number of database backup runs",
	}, []string{"database", "status"})
	BackupTablesDumped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_backup_tables_dumped_total",
		Help: "Total number of tables dumped during backups",
	}, []string{"database"})
	BackupTablesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_backup_tables_failed_total",
		Help: "Total number of table dumps that failed",
	}, []string{"database"})
	RestoreRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_restore_runs_total",
		Help: "Total number of database restore runs",
	}, []string{"database", "status"})

	// Monitor metrics
	MonitorQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_monitor_queries_total",
		Help: "Total number of monitor query batches executed",
	}, []string{"report"})
	MonitorQueryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbops_monitor_query_errors_total",
		Help: "Total number of monitor query batches that failed",
	}, []string{"report"})
)

func init() {
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailSent)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(MailRetryScheduled)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(BackupRuns)
	prometheus.MustRegister(BackupTablesDumped)
	prometheus.MustRegister(BackupTablesFailed)
	prometheus.MustRegister(RestoreRuns)
	prometheus.MustRegister(MonitorQueries)
	prometheus.MustRegister(MonitorQueryErrors)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
