package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/uiwarden/pkg/storage"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the security event journal",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded security events",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		eventType, _ := cmd.Flags().GetString("type")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := storage.NewBoltStore(rt.cfg.AuditDir)
		if err != nil {
			return fmt.Errorf("failed to open audit journal: %v", err)
		}
		defer store.Close()

		filter := storage.EventFilter{Type: eventType, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		list, err := store.ListEvents(filter)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if len(list) == 0 {
			fmt.Println("No events recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tMESSAGE\tDETAILS")
		for _, e := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.RFC3339), e.Type, e.Message, formatMetadata(e.Metadata))
		}
		return w.Flush()
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events older than a retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		retention, _ := cmd.Flags().GetDuration("older-than")

		store, err := storage.NewBoltStore(rt.cfg.AuditDir)
		if err != nil {
			return fmt.Errorf("failed to open audit journal: %v", err)
		}
		defer store.Close()

		n, err := store.PruneEvents(time.Now().Add(-retention))
		if err != nil {
			return err
		}
		fmt.Printf("✓ Pruned %d event(s)\n", n)
		return nil
	},
}

func formatMetadata(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, " ")
}

func init() {
	auditListCmd.Flags().String("type", "", "Only events of this type, e.g. config.rejected")
	auditListCmd.Flags().Duration("since", 0, "Only events newer than this, e.g. 24h")
	auditListCmd.Flags().Int("limit", 50, "Show at most this many of the newest events (0 for all)")
	auditListCmd.Flags().Bool("json", false, "Print as JSON")
	auditPruneCmd.Flags().Duration("older-than", 90*24*time.Hour, "Retention period")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditPruneCmd)
	rootCmd.AddCommand(auditCmd)
}
