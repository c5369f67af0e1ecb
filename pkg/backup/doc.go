// Package backup dumps MySQL databases table by table with mysqldump,
// packs the dumps into tar.gz archives, applies retention cleanup and
// restores dumps through the mysql CLI.
package backup
