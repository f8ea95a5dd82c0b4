// ABOUTME: Read-only identity resolver between chat accounts, game accounts and local IDs
// ABOUTME: A query with no identifier is a liveness probe, distinct from not-found

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/store"
)

// Query parameter names
const (
	ParamChatID  = "chat_id"
	ParamGameID  = "game_id"
	ParamLocalID = "local_id"
	ParamHealth  = "health"
)

var (
	// ErrNotFound means no mapping matched the identifier
	ErrNotFound = errors.New("identity mapping not found")
	// ErrAmbiguous means more than one identifier was supplied
	ErrAmbiguous = errors.New("exactly one of chat_id, game_id or local_id may be given")
)

// Field names which identifier a Query carries
type Field string

const (
	FieldChat  Field = ParamChatID
	FieldGame  Field = ParamGameID
	FieldLocal Field = ParamLocalID
)

// Query is a single lookup. A zero Query is a liveness probe.
type Query struct {
	Field Field
	Value string
}

// IsProbe reports whether the query carries no identifier
func (q Query) IsProbe() bool { return q.Field == "" }

// ParseQuery extracts the identifier from URL parameters. No identifier, or
// the health parameter, yields a probe. Blank identifier values count as
// absent and unrelated parameters are ignored.
func ParseQuery(values url.Values) (Query, error) {
	if values.Has(ParamHealth) {
		return Query{}, nil
	}

	var q Query
	for _, field := range []Field{FieldChat, FieldGame, FieldLocal} {
		for _, raw := range values[string(field)] {
			v := strings.TrimSpace(raw)
			if v == "" {
				continue
			}
			if q.Field != "" {
				return Query{}, ErrAmbiguous
			}
			q = Query{Field: field, Value: v}
		}
	}
	return q, nil
}

// Resolver answers identity lookups from the store
type Resolver struct {
	store   store.IdentityStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver creates a resolver. timeout bounds each store call.
func NewResolver(s store.IdentityStore, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: s, timeout: timeout, logger: logger.With("component", "identity")}
}

// Resolve looks up the mapping for q. Chat and game lookups match the ID
// exactly or the matching username case-insensitively; local IDs match exactly.
// Callers must handle probes before calling Resolve.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*store.IdentityMapping, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		m   *store.IdentityMapping
		err error
	)
	switch q.Field {
	case FieldChat:
		m, err = r.store.GetIdentityByChatID(ctx, q.Value)
	case FieldGame:
		m, err = r.store.GetIdentityByGameID(ctx, q.Value)
	case FieldLocal:
		m, err = r.store.GetIdentityByLocalID(ctx, q.Value)
	default:
		return nil, fmt.Errorf("unknown identity field %q", q.Field)
	}

	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("identity lookup failed", "field", q.Field, "error", err)
		return nil, err
	}
	return m, nil
}
