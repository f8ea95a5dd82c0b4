// ABOUTME: Fake game-server worker for E2E testing: polls the relay with a heartbeat and prints claims
// ABOUTME: Usage: fake-worker --url http://localhost:8080 --key rk_... [--instance w1] [--interval 2s]

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/relay-gateway/internal/auth"
	"github.com/2389/relay-gateway/internal/command"
	"github.com/2389/relay-gateway/internal/gateway"
)

func main() {
	baseURL := pflag.String("url", "http://localhost:8080", "relay gateway base URL")
	apiKey := pflag.String("key", os.Getenv("RELAY_API_KEY"), "tenant API key (or RELAY_API_KEY)")
	instance := pflag.String("instance", "fake-"+uuid.New().String()[:8], "worker instance ID")
	interval := pflag.Duration("interval", 2*time.Second, "poll interval")
	load := pflag.Int64("load", 0, "reported player count")
	once := pflag.Bool("once", false, "poll a single time and exit")
	pflag.Parse()

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "--key or RELAY_API_KEY is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	w := &worker{
		baseURL:  strings.TrimRight(*baseURL, "/"),
		apiKey:   *apiKey,
		instance: *instance,
		load:     *load,
		client:   &http.Client{Timeout: 10 * time.Second},
		out:      os.Stdout,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	if err := w.run(ctx, *interval, *once); err != nil {
		w.logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

type worker struct {
	baseURL  string
	apiKey   string
	instance string
	load     int64
	client   *http.Client
	out      io.Writer
	logger   *slog.Logger

	flags map[string]bool
}

// settingsEvery is how many polls pass between settings refreshes.
const settingsEvery = 30

func (w *worker) run(ctx context.Context, interval time.Duration, once bool) error {
	fmt.Fprintf(os.Stderr, "polling %s as %s every %s\n", w.baseURL, w.instance, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		if n%settingsEvery == 0 {
			if err := w.refreshSettings(ctx); err != nil {
				w.logger.Warn("fetching settings failed", "error", err)
			}
		}

		if _, err := w.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("poll failed", "error", err)
		}

		if once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// apiError is returned for non-200 responses.
type apiError struct {
	Status int
	Kind   string
	Msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Msg)
}

func (w *worker) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set(auth.APIKeyHeader, w.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var eb struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
		return &apiError{Status: resp.StatusCode, Kind: eb.Error.Kind, Msg: eb.Error.Message}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (w *worker) refreshSettings(ctx context.Context) error {
	var resp gateway.SettingsResponse
	if err := w.do(ctx, http.MethodGet, "/api/settings", nil, &resp); err != nil {
		return err
	}
	w.flags = resp.Flags
	return nil
}

// pollOnce claims pending commands and handles each. It returns how many
// commands were claimed.
func (w *worker) pollOnce(ctx context.Context) (int, error) {
	load := w.load
	var resp gateway.PollResponse
	if err := w.do(ctx, http.MethodPost, "/api/poll", gateway.PollRequest{InstanceID: w.instance, Load: &load}, &resp); err != nil {
		return 0, err
	}

	for _, c := range resp.Commands {
		w.handle(c)
	}
	return len(resp.Commands), nil
}

func (w *worker) handle(c gateway.CommandResponse) {
	cmd, err := command.Parse(c.Command, c.Args, "")
	if err != nil {
		fmt.Fprintf(w.out, "[%s] %s rejected: %v\n", c.ID, c.Command, err)
		return
	}

	// Without settings every known kind is allowed
	if w.flags != nil && !command.Allowed(cmd.Kind(), w.flags) {
		fmt.Fprintf(w.out, "[%s] %s skipped: disabled for this tenant\n", c.ID, cmd.Kind())
		return
	}

	switch v := cmd.(type) {
	case command.Kick:
		fmt.Fprintf(w.out, "[%s] KICK %s by %s\n", c.ID, v.Username, v.By)
	case command.Ban:
		fmt.Fprintf(w.out, "[%s] BAN %s by %s\n", c.ID, v.Username, v.By)
	case command.Unban:
		fmt.Fprintf(w.out, "[%s] UNBAN %s by %s\n", c.ID, v.Username, v.By)
	case command.Announce:
		fmt.Fprintf(w.out, "[%s] ANNOUNCE %q by %s\n", c.ID, v.Message, v.By)
	case command.Shutdown:
		fmt.Fprintf(w.out, "[%s] SHUTDOWN by %s\n", c.ID, v.By)
	case command.Unknown:
		fmt.Fprintf(w.out, "[%s] %s (unrecognized) args=%v\n", c.ID, v.Name, v.Raw)
	}
}
