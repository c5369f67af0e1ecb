// Package monitor reads health and capacity statistics: MySQL server
// status, schema sizes and table row counts over a pooled connection, and
// host CPU, memory and disk metrics.
package monitor
