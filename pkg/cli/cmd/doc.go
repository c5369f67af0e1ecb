// Package cmd implements the dbopsctl command tree: backup, restore, the
// monitor reports, test mail delivery and version/completion plumbing.
package cmd
