package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/store"
)

// auditList prints recent audit entries, newest first.
func (a *admin) auditList(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("audit", pflag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum entries")
	target := fs.String("target", "", "only entries for this target ID")
	if len(args) > 0 && args[0] == "list" {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := a.store.ListAuditLog(ctx, store.AuditFilter{TargetID: *target, Limit: *limit})
	if err != nil {
		return fmt.Errorf("listing audit log: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Audit Log")
	cyan.Fprintln(a.out, "  ---------")
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "  (no entries)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  WHEN\tACTOR\tACTION\tTARGET\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s:%s\t%s\n",
			e.Timestamp.Format("Jan 02 15:04:05"),
			truncate(e.ActorOperatorID, 12),
			e.Action,
			e.TargetType, truncate(e.TargetID, 12),
			formatDetail(e.Detail),
		)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func formatDetail(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, d[k])
	}
	return strings.Join(parts, " ")
}
