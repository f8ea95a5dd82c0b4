// ABOUTME: Tenant subcommands: create, list, rotate-key, set-push and set-flags
// ABOUTME: API keys are shown once and only their SHA-256 hash is stored

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/store"
)

func (a *admin) tenant(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "create", "add":
		return a.tenantCreate(ctx, args)
	case "list", "ls", "":
		return a.tenantList(ctx)
	case "rotate-key":
		return a.tenantRotateKey(ctx, args)
	case "set-push":
		return a.tenantSetPush(ctx, args)
	case "set-flags":
		return a.tenantSetFlags(ctx, args)
	default:
		return fmt.Errorf("unknown tenant subcommand: %s (use create, list, rotate-key, set-push, set-flags)", sub)
	}
}

func (a *admin) tenantCreate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("tenant create", pflag.ContinueOnError)
	name := fs.StringP("name", "n", "", "tenant display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("usage: tenant create --name NAME")
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}

	t := &store.Tenant{
		Name:       strings.TrimSpace(*name),
		APIKeyHash: auth.HashAPIKey(key),
		Flags:      store.DefaultFeatureFlags(),
	}
	if err := a.store.CreateTenant(ctx, t); err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	if err := a.audit(ctx, store.AuditCreateTenant, "tenant", t.ID, map[string]any{"name": t.Name}); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Fprintf(a.out, "✓ Created tenant: %s\n", t.ID)
	fmt.Fprintf(a.out, "  Name:     %s\n", t.Name)
	fmt.Fprintf(a.out, "  API key:  %s\n", key)
	yellow.Fprintln(a.out, "  Store the API key now; it cannot be shown again.")
	return nil
}

func (a *admin) tenantList(ctx context.Context) error {
	tenants, err := a.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Tenants")
	cyan.Fprintln(a.out, "  -------")

	if len(tenants) == 0 {
		fmt.Fprintln(a.out, "  (no tenants)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tPUSH\tFLAGS\tCREATED")
	fmt.Fprintln(w, "  --\t----\t----\t-----\t-------")
	for _, t := range tenants {
		push := "no"
		if t.PushConfigured() {
			push = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			t.ID, truncate(t.Name, 24), push, formatFlags(t.Flags), t.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func formatFlags(f store.FeatureFlags) string {
	var on []string
	for _, name := range []string{"kicks", "bans", "announcements", "shutdowns"} {
		if f.Map()[name] {
			on = append(on, name)
		}
	}
	if len(on) == 0 {
		return "(none)"
	}
	return strings.Join(on, ",")
}

func (a *admin) tenantRotateKey(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tenant rotate-key TENANT_ID")
	}
	id := args[0]

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	if err := a.store.UpdateTenantAPIKey(ctx, id, auth.HashAPIKey(key)); err != nil {
		return fmt.Errorf("rotating key: %w", err)
	}
	if err := a.audit(ctx, store.AuditRotateAPIKey, "tenant", id, nil); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Rotated API key for %s\n", id)
	fmt.Fprintf(a.out, "  API key:  %s\n", key)
	return nil
}

func (a *admin) tenantSetPush(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("tenant set-push", pflag.ContinueOnError)
	routingKey := fs.String("routing-key", "", "push routing key (universe ID)")
	secret := fs.String("secret", "", "push API secret")
	clearPush := fs.Bool("clear", false, "remove push credentials")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tenant set-push TENANT_ID --routing-key K --secret S")
	}
	id := fs.Arg(0)

	if *clearPush {
		*routingKey, *secret = "", ""
	} else if *routingKey == "" || *secret == "" {
		return fmt.Errorf("--routing-key and --secret are required (or --clear)")
	}

	sealed, err := a.sealer.Seal(*secret)
	if err != nil {
		return fmt.Errorf("sealing secret: %w", err)
	}
	if err := a.store.UpdateTenantPush(ctx, id, *routingKey, sealed); err != nil {
		return fmt.Errorf("updating push credentials: %w", err)
	}
	if err := a.audit(ctx, store.AuditSetPush, "tenant", id, map[string]any{
		"routing_key": *routingKey,
		"sealed":      a.sealer != nil,
	}); err != nil {
		return err
	}

	if *clearPush {
		color.New(color.FgGreen).Fprintf(a.out, "✓ Cleared push credentials for %s\n", id)
		return nil
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Configured push for %s\n", id)
	if a.sealer == nil {
		color.New(color.FgYellow).Fprintln(a.out, "  Secret stored in plaintext; set auth.secret_key to seal it.")
	}
	return nil
}

func (a *admin) tenantSetFlags(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("tenant set-flags", pflag.ContinueOnError)
	kicks := fs.Bool("kicks", false, "allow KICK")
	bans := fs.Bool("bans", false, "allow BAN and UNBAN")
	announcements := fs.Bool("announcements", false, "allow ANNOUNCE")
	shutdowns := fs.Bool("shutdowns", false, "allow SHUTDOWN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tenant set-flags TENANT_ID [--kicks] [--bans] [--announcements] [--shutdowns]")
	}
	id := fs.Arg(0)

	flags := store.FeatureFlags{
		Kicks:         *kicks,
		Bans:          *bans,
		Announcements: *announcements,
		Shutdowns:     *shutdowns,
	}
	if err := a.store.UpdateTenantFlags(ctx, id, flags); err != nil {
		return fmt.Errorf("updating flags: %w", err)
	}

	detail := make(map[string]any, 4)
	for k, v := range flags.Map() {
		detail[k] = v
	}
	if err := a.audit(ctx, store.AuditSetFlags, "tenant", id, detail); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Flags for %s: %s\n", id, formatFlags(flags))
	return nil
}
