package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/cli/output"
)

func newBackupCommand() *cobra.Command {
	var (
		all        bool
		noCompress bool
		cleanup    bool
	)

	cmd := &cobra.Command{
		Use:   "backup [database...]",
		Short: "Dump databases table by table into timestamped archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			backupCfg := rt.cfg.Backup
			if noCompress {
				backupCfg.Compress = false
			}
			m := backup.NewManager(backupCfg, rt.cfg.MySQL, rt.logger)
			if err := m.CheckTools(); err != nil {
				return err
			}

			databases := args
			if all || len(databases) == 0 {
				databases = rt.cfg.MySQL.Databases
			}
			if len(databases) == 0 {
				return fmt.Errorf("no databases given and none configured")
			}

			var summaries []*backup.Summary
			for _, db := range databases {
				summary, err := m.BackupDatabase(cmd.Context(), db)
				if err != nil {
					summaries = append(summaries, &backup.Summary{Database: db, Status: backup.StatusFailed})
					rt.logger.Sugar().Errorw("backup failed", "database", db, "error", err)
					continue
				}
				summaries = append(summaries, summary)
			}

			if cleanup {
				if _, err := m.Cleanup(backupCfg.KeepDays, backupCfg.KeepCount); err != nil {
					return err
				}
			}

			if rt.OutputFormat() == output.FormatTable {
				output.WriteBackupTable(rt.Writer(), summaries)
				return nil
			}
			return output.WriteObject(rt.Writer(), rt.OutputFormat(), summaries)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Back up every configured database")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "Skip the tar.gz archive")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Apply retention cleanup after the backup")

	return cmd
}

func newRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <database> <source>",
		Short: "Restore dumps from a .sql file, directory or tar.gz archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			m := backup.NewManager(rt.cfg.Backup, rt.cfg.MySQL, rt.logger)
			if err := m.CheckTools(); err != nil {
				return err
			}
			if err := m.Restore(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(rt.Writer(), "restored %s into %s\n", args[1], args[0])
			return err
		},
	}
	return cmd
}
