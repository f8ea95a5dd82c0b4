// ABOUTME: Operator subcommands: add, list, grant and token
// ABOUTME: Tokens are HS256 JWTs signed with auth.jwt_secret from the gateway config

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/store"
)

func (a *admin) operator(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "add", "create":
		return a.operatorAdd(ctx, args)
	case "list", "ls", "":
		return a.operatorList(ctx)
	case "grant":
		return a.operatorGrant(ctx, args)
	case "token":
		return a.operatorToken(ctx, args)
	default:
		return fmt.Errorf("unknown operator subcommand: %s (use add, list, grant, token)", sub)
	}
}

func parseRole(s string) (store.RoleName, error) {
	switch r := store.RoleName(strings.ToLower(s)); r {
	case store.RoleOwner, store.RoleAdmin, store.RoleModerator:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (use owner, admin, moderator)", s)
	}
}

func (a *admin) operatorAdd(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("operator add", pflag.ContinueOnError)
	name := fs.StringP("name", "n", "", "display name")
	roleFlag := fs.StringP("role", "r", "", "initial role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	displayName := strings.TrimSpace(*name)
	if displayName == "" {
		return fmt.Errorf("usage: operator add --name NAME [--role ROLE]")
	}

	var role store.RoleName
	if *roleFlag != "" {
		var err error
		if role, err = parseRole(*roleFlag); err != nil {
			return err
		}
	}

	op := &store.Operator{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Status:      store.OperatorActive,
	}
	if err := a.store.CreateOperator(ctx, op); err != nil {
		return fmt.Errorf("creating operator: %w", err)
	}
	if err := a.audit(ctx, store.AuditCreateOperator, "operator", op.ID, map[string]any{"display_name": displayName}); err != nil {
		return err
	}

	if role != "" {
		if err := a.grant(ctx, op.ID, role); err != nil {
			return err
		}
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Created operator: %s\n", op.ID)
	fmt.Fprintf(a.out, "  Display Name: %s\n", displayName)
	if role != "" {
		fmt.Fprintf(a.out, "  Role:         %s\n", role)
	}
	return nil
}

func (a *admin) operatorList(ctx context.Context) error {
	ops, err := a.store.ListOperators(ctx)
	if err != nil {
		return fmt.Errorf("listing operators: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Operators")
	cyan.Fprintln(a.out, "  ---------")
	if len(ops) == 0 {
		fmt.Fprintln(a.out, "  (no operators)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tSTATUS\tROLES")
	fmt.Fprintln(w, "  --\t----\t------\t-----")
	for _, op := range ops {
		roles, err := a.store.ListRoles(ctx, op.ID)
		if err != nil {
			return fmt.Errorf("listing roles: %w", err)
		}
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", op.ID, truncate(op.DisplayName, 24), op.Status, strings.Join(names, ","))
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func (a *admin) grant(ctx context.Context, operatorID string, role store.RoleName) error {
	if err := a.store.AddRole(ctx, operatorID, role); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	return a.audit(ctx, store.AuditGrantRole, "operator", operatorID, map[string]any{"role": string(role)})
}

func (a *admin) operatorGrant(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: operator grant OPERATOR_ID ROLE")
	}
	role, err := parseRole(args[1])
	if err != nil {
		return err
	}
	if _, err := a.store.GetOperator(ctx, args[0]); err != nil {
		return fmt.Errorf("looking up operator: %w", err)
	}
	if err := a.grant(ctx, args[0], role); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Granted %s to %s\n", role, args[0])
	return nil
}

func (a *admin) operatorToken(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("operator token", pflag.ContinueOnError)
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime (0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: operator token OPERATOR_ID [--ttl DURATION]")
	}
	id := fs.Arg(0)

	if a.cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}
	if _, err := a.store.GetOperator(ctx, id); err != nil {
		return fmt.Errorf("looking up operator: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(a.cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(id, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	if err := a.audit(ctx, store.AuditIssueToken, "operator", id, map[string]any{"ttl": ttl.String()}); err != nil {
		return err
	}

	fmt.Fprintln(a.out, token)
	return nil
}
