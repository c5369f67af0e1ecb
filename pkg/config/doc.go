// Package config handles toolkit configuration loading from a YAML file,
// covering the HTTP server, MySQL connection, backup retention, and the
// mail dispatcher settings, with defaults applied after unmarshaling.
package config
