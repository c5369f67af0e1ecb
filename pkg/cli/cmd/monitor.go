package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbops/toolkit/pkg/cli/output"
	"github.com/dbops/toolkit/pkg/monitor"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show MySQL server status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			m, err := monitor.NewMySQLMonitor(rt.cfg.MySQL, rt.logger)
			if err != nil {
				return err
			}
			defer m.Close()

			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			if rt.OutputFormat() == output.FormatTable {
				output.WriteStatusTable(rt.Writer(), status)
				return nil
			}
			return output.WriteObject(rt.Writer(), rt.OutputFormat(), status)
		},
	}
}

func newSizesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sizes",
		Short: "Show per-database disk usage, system schemas excluded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			m, err := monitor.NewMySQLMonitor(rt.cfg.MySQL, rt.logger)
			if err != nil {
				return err
			}
			defer m.Close()

			sizes, err := m.DatabaseSizes(cmd.Context())
			if err != nil {
				return err
			}
			if rt.OutputFormat() == output.FormatTable {
				output.WriteSizesTable(rt.Writer(), sizes)
				return nil
			}
			return output.WriteObject(rt.Writer(), rt.OutputFormat(), sizes)
		},
	}
}

func newRowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rows [database...]",
		Short: "Show approximate table row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			m, err := monitor.NewMySQLMonitor(rt.cfg.MySQL, rt.logger)
			if err != nil {
				return err
			}
			defer m.Close()

			databases := args
			if len(databases) == 0 {
				databases = rt.cfg.MySQL.Databases
			}
			if len(databases) == 0 {
				return fmt.Errorf("no databases given and none configured")
			}

			if rt.OutputFormat() == output.FormatTable {
				for i, db := range databases {
					counts, err := m.TableRows(cmd.Context(), db)
					if err != nil {
						return err
					}
					if i > 0 {
						_, _ = fmt.Fprintln(rt.Writer())
					}
					output.WriteRowsTable(rt.Writer(), db, counts)
				}
				return nil
			}

			all := map[string][]monitor.TableRowCount{}
			for _, db := range databases {
				counts, err := m.TableRows(cmd.Context(), db)
				if err != nil {
					return err
				}
				all[db] = counts
			}
			return output.WriteObject(rt.Writer(), rt.OutputFormat(), all)
		},
	}
}

func newSystemCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show host CPU, memory and disk metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			report, err := monitor.NewSystemMonitor(rt.logger).Report(cmd.Context())
			if err != nil {
				return err
			}
			if rt.OutputFormat() == output.FormatTable {
				output.WriteSystemTable(rt.Writer(), report)
				return nil
			}
			return output.WriteObject(rt.Writer(), rt.OutputFormat(), report)
		},
	}
}
