// Package config handles configuration loading for relay-gateway.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by .toml extension) files with
// environment variable expansion. Load applies defaults and validates.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/relay/gateway.yaml (~/.config/relay/gateway.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${RELAY_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":8080"     # API, health, metrics
//	  grpc_addr: ":50051"    # grpc.health.v1 (optional)
//
//	database:
//	  driver: "sqlite"       # sqlite or postgres
//	  path: "~/.local/share/relay/gateway.db"
//	  dsn: "${RELAY_DATABASE_URL}"
//	  auto_migrate: true
//	  timeout: "3s"          # bound on each store call
//
//	auth:
//	  jwt_secret: "${RELAY_JWT_SECRET}"   # operator tokens, min 32 bytes
//	  secret_key: "${RELAY_SECRET_KEY}"   # seals push secrets, 32 bytes hex/base64
//
//	presence:
//	  ttl: "5m"
//
//	push:
//	  base_url: "https://apis.roblox.com/messaging-service/v1/universes"
//	  topic: "RelayCommands"
//	  timeout: "3s"
//
//	poll:
//	  rate_per_second: 2     # 0 disables limiting
//	  burst: 10
//
//	logging:
//	  level: "info"          # debug, info, warn, error
//	  format: "text"         # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Duration values use Go's time.ParseDuration syntax.
package config
