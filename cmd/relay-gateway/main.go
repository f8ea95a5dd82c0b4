// ABOUTME: Entry point for the relay-gateway server
// ABOUTME: Serves the command relay API and provides setup, migration and health subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/gateway"
	"github.com/2389/relay-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                                    _
 _ __ ___| | __ _ _   _        __ _  __ _| |_ _____      ____ _ _   _
| '__/ _ \ |/ _' | | | |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | |  __/ | (_| | |_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_|  \___|_|\__,_|\__, |      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                  |___/       |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: RELAY_CONFIG env var > XDG_CONFIG_HOME/relay/gateway.yaml > ~/.config/relay/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "relay", "gateway.yaml")
}

// getDataPath returns the path to the relay data directory.
// Priority: XDG_DATA_HOME/relay > ~/.local/share/relay
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "relay")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: relay-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  bootstrap --name NAME  Create the initial owner operator and token")
		fmt.Println("  migrate up|down        Apply or roll back Postgres migrations")
		fmt.Println("  health                 Check gateway readiness")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s (health)\n", cfg.Server.GRPCAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Presence:  %s TTL\n", cfg.Presence.TTL)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting relay-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"driver", cfg.Database.Driver,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println("healthy")
	return nil
}

// runMigrate applies the embedded Postgres migrations. SQLite creates its
// schema on open and has nothing to migrate.
func runMigrate(args []string) error {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrate requires database.driver=postgres (sqlite creates its schema on open)")
	}

	err = store.Migrate(cfg.Database.DSN, direction)
	switch {
	case errors.Is(err, store.ErrNoChange):
		fmt.Println("schema already up to date")
		return nil
	case err != nil:
		return fmt.Errorf("migrating %s: %w", direction, err)
	}

	color.Green("  ✓ Migrated %s", direction)
	return nil
}

// runBootstrap performs first-time setup of the gateway:
// 1. Creates config file with random secrets (if not exists)
// 2. Creates database and owner operator
// 3. Generates JWT token for the owner
//
// This is a one-command setup: relay-gateway bootstrap --name "Your Name"
func runBootstrap(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	displayName := fs.StringP("name", "n", "", "display name of the owner operator")
	tokenTTL := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	name := strings.TrimSpace(*displayName)
	if name == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}

	configPath := getConfigPath()

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeBootstrapConfig(configPath); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required for bootstrap)", configPath)
	}

	s, err := gateway.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Driver)

	count, err := s.CountOperators(ctx)
	if err != nil {
		return fmt.Errorf("checking operators: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d operator(s) exist", count)
	}

	op := &store.Operator{
		ID:          uuid.New().String(),
		DisplayName: name,
		Status:      store.OperatorActive,
	}
	if err := s.CreateOperator(ctx, op); err != nil {
		return fmt.Errorf("creating operator: %w", err)
	}
	if err := s.AddRole(ctx, op.ID, store.RoleOwner); err != nil {
		return fmt.Errorf("granting owner role: %w", err)
	}
	if err := s.AppendAuditLog(ctx, &store.AuditEntry{
		ActorOperatorID: store.SystemActor,
		Action:          store.AuditBootstrapOwner,
		TargetType:      "operator",
		TargetID:        op.ID,
		Detail:          map[string]any{"display_name": name},
	}); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}

	green.Printf("  ✓ Created owner operator: %s\n", name)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(op.ID, *tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Save token to file for CLI tools to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Owner Operator")
	cyan.Println("  --------------")
	fmt.Printf("  ID:           %s\n", op.ID)
	fmt.Printf("  Display Name: %s\n", name)
	fmt.Printf("  Roles:        owner\n")
	if *tokenTTL > 0 {
		fmt.Printf("  Token:        %s (expires %s)\n", tokenPath, time.Now().Add(*tokenTTL).Format("Jan 02, 2006"))
	} else {
		fmt.Printf("  Token:        %s (no expiry)\n", tokenPath)
	}
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    relay-gateway serve                    # start the gateway")
	fmt.Println("    relay-admin tenant create --name NAME  # provision a tenant")
	fmt.Println()

	return nil
}

// randomSecret returns n random bytes in the given encoding.
func randomSecret(n int, encode func([]byte) string) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return encode(b), nil
}

// writeBootstrapConfig writes a sqlite config with fresh JWT and sealing secrets.
func writeBootstrapConfig(configPath string) error {
	jwtSecret, err := randomSecret(32, base64.StdEncoding.EncodeToString)
	if err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	secretKey, err := randomSecret(32, hex.EncodeToString)
	if err != nil {
		return fmt.Errorf("generating secret key: %w", err)
	}

	dataPath := getDataPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content := renderConfig(configOptions{
		HTTPAddr:  "localhost:8080",
		DBPath:    filepath.Join(dataPath, "relay.db"),
		JWTSecret: jwtSecret,
		SecretKey: secretKey,
		LogLevel:  "info",
		LogFormat: "text",
	})
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// configOptions are the values collected by init and bootstrap.
type configOptions struct {
	HTTPAddr  string
	GRPCAddr  string
	DBPath    string
	JWTSecret string
	SecretKey string

	TailscaleEnabled  bool
	TailscaleHostname string
	TailscaleAuthKey  string
	TailscaleEphem    bool
	TailscaleFunnel   bool

	PresenceTTL string
	LogLevel    string
	LogFormat   string
	Metrics     bool
}

// renderConfig produces a YAML config file.
func renderConfig(o configOptions) string {
	var b strings.Builder
	b.WriteString("# relay-gateway configuration\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n", o.HTTPAddr)
	if o.GRPCAddr != "" {
		fmt.Fprintf(&b, "  grpc_addr: %q\n", o.GRPCAddr)
	}
	b.WriteString("\n")

	b.WriteString("database:\n")
	b.WriteString("  driver: \"sqlite\"\n")
	fmt.Fprintf(&b, "  path: %q\n", o.DBPath)
	b.WriteString("  timeout: \"3s\"\n\n")

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n", o.JWTSecret)
	if o.SecretKey != "" {
		fmt.Fprintf(&b, "  secret_key: %q\n", o.SecretKey)
	}
	b.WriteString("\n")

	if o.TailscaleEnabled {
		b.WriteString("tailscale:\n")
		b.WriteString("  enabled: true\n")
		fmt.Fprintf(&b, "  hostname: %q\n", o.TailscaleHostname)
		if o.TailscaleAuthKey != "" {
			fmt.Fprintf(&b, "  auth_key: %q\n", o.TailscaleAuthKey)
		}
		fmt.Fprintf(&b, "  ephemeral: %t\n", o.TailscaleEphem)
		fmt.Fprintf(&b, "  funnel: %t\n\n", o.TailscaleFunnel)
	}

	ttl := o.PresenceTTL
	if ttl == "" {
		ttl = "5m"
	}
	b.WriteString("presence:\n")
	fmt.Fprintf(&b, "  ttl: %q\n\n", ttl)

	b.WriteString("push:\n")
	fmt.Fprintf(&b, "  topic: %q\n", config.DefaultPushTopic)
	b.WriteString("  timeout: \"3s\"\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", o.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", o.LogFormat)

	b.WriteString("metrics:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", o.Metrics)
	b.WriteString("  path: \"/metrics\"\n")

	return b.String()
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("relay-gateway configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	opts := configOptions{
		HTTPAddr: prompt(reader, "HTTP address", "localhost:8080"),
		GRPCAddr: prompt(reader, "gRPC health address (empty to disable)", ""),
	}

	fmt.Println("\n--- Database Configuration ---")
	opts.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "relay.db"))

	fmt.Println("\n--- Tailscale Configuration ---")
	opts.TailscaleEnabled = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if opts.TailscaleEnabled {
		opts.TailscaleHostname = prompt(reader, "Tailscale hostname", "relay-gateway")
		opts.TailscaleAuthKey = prompt(reader, "Tailscale auth key (leave empty for TS_AUTHKEY)", "")
		opts.TailscaleEphem = isYes(prompt(reader, "Ephemeral node?", "no"))
		opts.TailscaleFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Relay Configuration ---")
	opts.PresenceTTL = prompt(reader, "Presence TTL", "5m")
	opts.Metrics = isYes(prompt(reader, "Enable Prometheus metrics?", "yes"))

	fmt.Println("\n--- Logging Configuration ---")
	opts.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	opts.LogFormat = prompt(reader, "Log format (text/json)", "text")

	var err error
	if opts.JWTSecret, err = randomSecret(32, base64.StdEncoding.EncodeToString); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	if opts.SecretKey, err = randomSecret(32, hex.EncodeToString); err != nil {
		return fmt.Errorf("generating secret key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(opts)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(opts.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext:")
	fmt.Println("  relay-gateway bootstrap --name \"Your Name\"")
	fmt.Println("  relay-gateway serve")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
