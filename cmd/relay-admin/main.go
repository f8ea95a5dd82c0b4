// ABOUTME: Admin CLI for provisioning relay tenants, operators and identity mappings
// ABOUTME: Talks to the store directly and records every change in the audit log

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/gateway"
	"github.com/2389/relay-gateway/internal/push"
	"github.com/2389/relay-gateway/internal/store"
)

const banner = `
           _                            _           _
 _ __ ___| | __ _ _   _        __ _  __| |_ __ ___ (_)_ __
| '__/ _ \ |/ _' | | | |_____ / _' |/ _' | '_ ' _ \| | '_ \
| | |  __/ | (_| | |_| |_____| (_| | (_| | | | | | | | | | |
|_|  \___|_|\__,_|\__, |      \__,_|\__,_|_| |_| |_|_|_| |_|
                  |___/
`

// admin carries what every subcommand needs.
type admin struct {
	store  store.Store
	cfg    *config.Config
	sealer *push.Sealer
	actor  string // operator ID recorded in the audit log
	out    io.Writer
}

func main() {
	global := pflag.NewFlagSet("relay-admin", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.StringP("config", "c", defaultConfigPath(), "path to gateway config")
	actor := global.String("as", envOr("RELAY_OPERATOR", store.SystemActor), "operator ID recorded in the audit log")
	global.Usage = printUsage

	if err := global.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(1)
	}
	args := global.Args()
	if len(args) == 0 || args[0] == "help" {
		printUsage()
		if len(args) == 0 {
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *actor, args); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, actor string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sealer, err := gateway.NewSealer(cfg)
	if err != nil {
		return fmt.Errorf("configuring secret sealing: %w", err)
	}

	s, err := gateway.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	a := &admin{store: s, cfg: cfg, sealer: sealer, actor: actor, out: os.Stdout}
	return a.dispatch(ctx, args)
}

// dispatch routes "<group> <subcommand> [flags]" to its handler.
func (a *admin) dispatch(ctx context.Context, args []string) error {
	group, rest := args[0], args[1:]
	sub := ""
	if len(rest) > 0 {
		sub, rest = rest[0], rest[1:]
	}

	switch group {
	case "tenant", "tenants":
		return a.tenant(ctx, sub, rest)
	case "operator", "operators":
		return a.operator(ctx, sub, rest)
	case "identity":
		return a.identity(ctx, sub, rest)
	case "audit":
		return a.auditList(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command: %s", group)
	}
}

// audit appends an audit entry attributed to the acting operator.
func (a *admin) audit(ctx context.Context, action store.AuditAction, targetType, targetID string, detail map[string]any) error {
	if err := a.store.AppendAuditLog(ctx, &store.AuditEntry{
		ActorOperatorID: a.actor,
		Action:          action,
		TargetType:      targetType,
		TargetID:        targetID,
		Detail:          detail,
	}); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: relay-admin [--config PATH] [--as OPERATOR_ID] <command> [args]")
	fmt.Println()
	yellow.Println("Tenants:")
	fmt.Println("  tenant create --name NAME             Create a tenant and print its API key")
	fmt.Println("  tenant list                           List tenants")
	fmt.Println("  tenant rotate-key ID                  Issue a new API key (old key stops working)")
	fmt.Println("  tenant set-push ID --routing-key K --secret S")
	fmt.Println("                                        Configure push delivery credentials")
	fmt.Println("  tenant set-flags ID [--kicks] [--bans] [--announcements] [--shutdowns]")
	fmt.Println("                                        Replace feature flags")
	fmt.Println()
	yellow.Println("Operators:")
	fmt.Println("  operator add --name NAME [--role R]   Create an operator")
	fmt.Println("  operator list                         List operators and roles")
	fmt.Println("  operator grant ID ROLE                Grant owner, admin or moderator")
	fmt.Println("  operator token ID [--ttl 720h]        Issue an operator JWT")
	fmt.Println()
	yellow.Println("Identity:")
	fmt.Println("  identity link --local ID [--chat ID] [--chat-name N] [--game ID] [--game-name N]")
	fmt.Println("  identity show (--chat V | --game V | --local V)")
	fmt.Println()
	yellow.Println("Audit:")
	fmt.Println("  audit [--limit N] [--target ID]       Show recent audit entries")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  RELAY_CONFIG     Config path (default: $XDG_CONFIG_HOME/relay/gateway.yaml)")
	fmt.Println("  RELAY_OPERATOR   Operator ID recorded in the audit log (default: system)")
	fmt.Println()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultConfigPath mirrors relay-gateway's lookup.
func defaultConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "relay", "gateway.yaml")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
