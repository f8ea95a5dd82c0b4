// ABOUTME: Typed command union for moderation and admin commands sent to workers
// ABOUTME: Known kinds get typed records; anything else is carried as Unknown with raw args

package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultModerator is recorded when a command arrives without attribution
const DefaultModerator = "Unknown"

// Kind is the canonical uppercase command name
type Kind string

const (
	KindKick     Kind = "KICK"
	KindBan      Kind = "BAN"
	KindUnban    Kind = "UNBAN"
	KindAnnounce Kind = "ANNOUNCE"
	KindShutdown Kind = "SHUTDOWN"
)

// KnownKinds lists the kinds with typed argument records
var KnownKinds = []Kind{KindKick, KindBan, KindUnban, KindAnnounce, KindShutdown}

// Flag names the tenant feature flag that gates this kind, or "" if none does
func (k Kind) Flag() string {
	switch k {
	case KindKick:
		return "kicks"
	case KindBan, KindUnban:
		return "bans"
	case KindAnnounce:
		return "announcements"
	case KindShutdown:
		return "shutdowns"
	}
	return ""
}

// ErrMissingName is returned when the command name is empty
var ErrMissingName = errors.New("command name is required")

// Command is implemented by every variant of the union
type Command interface {
	Kind() Kind
	// Args is the flattened argument bag as stored and delivered, including
	// the moderator attribution.
	Args() map[string]any
	Moderator() string
	isCommand()
}

// Kick removes a player from the running server
type Kick struct {
	Username string
	Reason   string
	By       string
	Extra    map[string]any
}

// Ban removes a player and prevents them from rejoining
type Ban struct {
	Username string
	Reason   string
	By       string
	Extra    map[string]any
}

// Unban lifts a ban
type Unban struct {
	Username string
	By       string
	Extra    map[string]any
}

// Announce broadcasts a message to every player
type Announce struct {
	Message string
	By      string
	Extra   map[string]any
}

// Shutdown asks the worker to drain and exit
type Shutdown struct {
	Reason string
	By     string
	Extra  map[string]any
}

// Unknown carries a command this gateway has no schema for
type Unknown struct {
	Name string
	Raw  map[string]any
	By   string
}

func (Kick) isCommand()     {}
func (Ban) isCommand()      {}
func (Unban) isCommand()    {}
func (Announce) isCommand() {}
func (Shutdown) isCommand() {}
func (Unknown) isCommand()  {}

func (c Kick) Kind() Kind     { return KindKick }
func (c Ban) Kind() Kind      { return KindBan }
func (c Unban) Kind() Kind    { return KindUnban }
func (c Announce) Kind() Kind { return KindAnnounce }
func (c Shutdown) Kind() Kind { return KindShutdown }
func (c Unknown) Kind() Kind  { return Kind(c.Name) }

func (c Kick) Moderator() string     { return c.By }
func (c Ban) Moderator() string      { return c.By }
func (c Unban) Moderator() string    { return c.By }
func (c Announce) Moderator() string { return c.By }
func (c Shutdown) Moderator() string { return c.By }
func (c Unknown) Moderator() string  { return c.By }

func (c Kick) Args() map[string]any {
	args := withExtra(c.Extra, c.By)
	args["username"] = c.Username
	setOptional(args, "reason", c.Reason)
	return args
}

func (c Ban) Args() map[string]any {
	args := withExtra(c.Extra, c.By)
	args["username"] = c.Username
	setOptional(args, "reason", c.Reason)
	return args
}

func (c Unban) Args() map[string]any {
	args := withExtra(c.Extra, c.By)
	args["username"] = c.Username
	return args
}

func (c Announce) Args() map[string]any {
	args := withExtra(c.Extra, c.By)
	args["message"] = c.Message
	return args
}

func (c Shutdown) Args() map[string]any {
	args := withExtra(c.Extra, c.By)
	setOptional(args, "reason", c.Reason)
	return args
}

func (c Unknown) Args() map[string]any {
	return withExtra(c.Raw, c.By)
}

func withExtra(extra map[string]any, moderator string) map[string]any {
	args := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		args[k] = v
	}
	args["moderator"] = moderator
	return args
}

func setOptional(args map[string]any, key, value string) {
	if value != "" {
		args[key] = value
	}
}

// NormalizeName trims and uppercases a command name
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Parse builds a typed command from a free-form name and argument bag.
// Only an empty name is an error. Scalar argument values are read as
// strings; a known kind whose typed field is missing or not a scalar is
// returned as Unknown with its raw args so it can still be queued.
//
// The moderator is resolved in order: the explicit moderator argument, a
// non-empty string "moderator" key in args, then DefaultModerator.
func Parse(name string, args map[string]any, moderator string) (Command, error) {
	kind := Kind(NormalizeName(name))
	if kind == "" {
		return nil, ErrMissingName
	}

	by := strings.TrimSpace(moderator)
	if by == "" {
		if s, ok := args["moderator"].(string); ok {
			by = strings.TrimSpace(s)
		}
	}
	if by == "" {
		by = DefaultModerator
	}

	raw := copyWithout(args, "moderator")
	p := argParser{rest: copyWithout(args, "moderator")}

	var cmd Command
	switch kind {
	case KindKick:
		c := Kick{Username: p.required("username"), Reason: p.optional("reason"), By: by}
		c.Extra = p.rest
		cmd = c
	case KindBan:
		c := Ban{Username: p.required("username"), Reason: p.optional("reason"), By: by}
		c.Extra = p.rest
		cmd = c
	case KindUnban:
		c := Unban{Username: p.required("username"), By: by}
		c.Extra = p.rest
		cmd = c
	case KindAnnounce:
		c := Announce{Message: p.required("message"), By: by}
		c.Extra = p.rest
		cmd = c
	case KindShutdown:
		c := Shutdown{Reason: p.optional("reason"), By: by}
		c.Extra = p.rest
		cmd = c
	default:
		return Unknown{Name: string(kind), Raw: raw, By: by}, nil
	}

	if p.missing {
		return Unknown{Name: string(kind), Raw: raw, By: by}, nil
	}
	return cmd, nil
}

// argParser pulls typed fields out of an argument bag, leaving the rest as extras.
type argParser struct {
	rest    map[string]any
	missing bool
}

// take removes key from the bag and returns it as a string. Values that are
// not scalars stay in the bag untouched.
func (p *argParser) take(key string) (string, bool) {
	v, ok := p.rest[key]
	if !ok {
		return "", false
	}
	s, isScalar := scalarString(v)
	if !isScalar {
		return "", false
	}
	delete(p.rest, key)
	return strings.TrimSpace(s), true
}

func (p *argParser) required(key string) string {
	s, ok := p.take(key)
	if !ok || s == "" {
		p.missing = true
	}
	return s
}

func (p *argParser) optional(key string) string {
	s, _ := p.take(key)
	return s
}

// scalarString renders JSON scalars as strings. nil counts as an empty scalar.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return fmt.Sprint(t), true
	}
	return "", false
}

func copyWithout(args map[string]any, skip string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k != skip {
			out[k] = v
		}
	}
	return out
}

// Allowed reports whether the tenant flags permit a command of this kind.
// Kinds without a gating flag are always allowed.
func Allowed(kind Kind, flags map[string]bool) bool {
	flag := kind.Flag()
	if flag == "" {
		return true
	}
	return flags[flag]
}
