// ABOUTME: Identity subcommands: link accounts and show a resolved mapping
// ABOUTME: show goes through the same resolver the HTTP lookup uses

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/identity"
	"github.com/2389/relay-gateway/internal/store"
)

func (a *admin) identity(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "link":
		return a.identityLink(ctx, args)
	case "show", "get":
		return a.identityShow(ctx, args)
	default:
		return fmt.Errorf("unknown identity subcommand: %s (use link, show)", sub)
	}
}

func (a *admin) identityLink(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("identity link", pflag.ContinueOnError)
	m := &store.IdentityMapping{}
	fs.StringVar(&m.LocalID, "local", "", "local account ID")
	fs.StringVar(&m.ChatID, "chat", "", "chat platform user ID")
	fs.StringVar(&m.ChatUsername, "chat-name", "", "chat platform username")
	fs.StringVar(&m.GameID, "game", "", "game platform user ID")
	fs.StringVar(&m.GameUsername, "game-name", "", "game platform username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if m.LocalID == "" {
		return fmt.Errorf("usage: identity link --local ID [--chat ID] [--chat-name N] [--game ID] [--game-name N]")
	}

	if err := a.store.UpsertIdentityMapping(ctx, m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("chat or game ID is already linked to another account")
		}
		return fmt.Errorf("linking identity: %w", err)
	}
	if err := a.audit(ctx, store.AuditLinkIdentity, "identity", m.LocalID, map[string]any{
		"chat_id": m.ChatID,
		"game_id": m.GameID,
	}); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Linked %s\n", m.LocalID)
	return nil
}

func (a *admin) identityShow(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("identity show", pflag.ContinueOnError)
	chat := fs.String("chat", "", "chat ID or username")
	game := fs.String("game", "", "game ID or username")
	local := fs.String("local", "", "local ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := url.Values{}
	if fs.Changed("chat") {
		values.Set(identity.ParamChatID, *chat)
	}
	if fs.Changed("game") {
		values.Set(identity.ParamGameID, *game)
	}
	if fs.Changed("local") {
		values.Set(identity.ParamLocalID, *local)
	}

	q, err := identity.ParseQuery(values)
	if err != nil {
		return err
	}
	if q.IsProbe() {
		return fmt.Errorf("usage: identity show (--chat V | --game V | --local V)")
	}

	resolver := identity.NewResolver(a.store, a.cfg.Database.Timeout, nil)
	m, err := resolver.Resolve(ctx, q)
	if errors.Is(err, identity.ErrNotFound) {
		return fmt.Errorf("no mapping for %s %q", q.Field, q.Value)
	}
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Identity")
	cyan.Fprintln(a.out, "  --------")
	fmt.Fprintf(a.out, "  Local ID:       %s\n", m.LocalID)
	fmt.Fprintf(a.out, "  Chat:           %s (%s)\n", orDash(m.ChatID), orDash(m.ChatUsername))
	fmt.Fprintf(a.out, "  Game:           %s (%s)\n", orDash(m.GameID), orDash(m.GameUsername))
	fmt.Fprintf(a.out, "  Updated:        %s\n", m.UpdatedAt.Format("Jan 02, 2006 15:04"))
	fmt.Fprintln(a.out)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
