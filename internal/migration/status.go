package migration

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteStatus 以表格形式输出迁移状态
func WriteStatus(w io.Writer, statuses []MigrationStatus, info *MigrationInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if info != nil {
		_, err := fmt.Fprintf(w, "\ncurrent: %d  applied: %d/%d  pending: %d\n",
			info.CurrentVersion, info.AppliedMigrations, info.TotalMigrations, info.PendingMigrations)
		return err
	}
	return nil
}
