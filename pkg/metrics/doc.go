// Package metrics defines Prometheus metrics for the dbops toolkit,
// covering mail dispatch, SMTP delivery, backups, restores, and monitor
// queries.
package metrics
