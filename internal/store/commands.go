// ABOUTME: Durable per-tenant command queue with an atomic claim
// ABOUTME: ClaimPending is one conditional UPDATE ... RETURNING, never a read then write

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnqueueCommand appends a PENDING command and fills in ID, Seq and CreatedAt
func (s *SQLStore) EnqueueCommand(ctx context.Context, cmd *Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	cmd.Status = CommandPending
	cmd.ProcessedAt = nil

	args := cmd.Args
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshaling command args: %w", err)
	}

	query := `
		INSERT INTO commands (id, tenant_id, name, args_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING seq
	`

	err = s.queryRow(ctx, query,
		cmd.ID,
		cmd.TenantID,
		cmd.Name,
		string(argsJSON),
		CommandPending,
		formatTime(cmd.CreatedAt),
	).Scan(&cmd.Seq)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return unavailable("inserting command", err)
	}

	s.logger.Debug("enqueued command", "id", cmd.ID, "tenant_id", cmd.TenantID, "name", cmd.Name, "seq", cmd.Seq)
	return nil
}

// ClaimPending marks every PENDING command of the tenant PROCESSED and returns
// them in insertion order. The selection and the transition happen in a single
// statement, so a row can only be returned to one caller: SQLite takes the write
// lock before evaluating the WHERE clause, and Postgres re-checks the predicate
// against the committed row when a concurrent update got there first.
func (s *SQLStore) ClaimPending(ctx context.Context, tenantID string, now time.Time) ([]*Command, error) {
	query := `
		UPDATE commands
		SET status = ?, processed_at = ?
		WHERE tenant_id = ? AND status = ?
		RETURNING seq, id, tenant_id, name, args_json, created_at
	`

	processedAt := now.UTC()
	rows, err := s.query(ctx, query,
		CommandProcessed,
		formatTime(processedAt),
		tenantID,
		CommandPending,
	)
	if err != nil {
		return nil, unavailable("claiming commands", err)
	}
	defer rows.Close()

	claimed := []*Command{}
	for rows.Next() {
		var cmd Command
		var argsJSON, createdAt string
		if err := rows.Scan(&cmd.Seq, &cmd.ID, &cmd.TenantID, &cmd.Name, &argsJSON, &createdAt); err != nil {
			return nil, unavailable("scanning claimed command", err)
		}
		if err := decodeCommand(&cmd, argsJSON, createdAt); err != nil {
			return nil, err
		}
		cmd.Status = CommandProcessed
		pa := processedAt
		cmd.ProcessedAt = &pa
		claimed = append(claimed, &cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating claimed commands", err)
	}

	// RETURNING order is unspecified on both engines
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].Seq < claimed[j].Seq })

	if len(claimed) > 0 {
		s.logger.Debug("claimed commands", "tenant_id", tenantID, "count", len(claimed))
	}
	return claimed, nil
}

// ListCommands returns commands oldest first. It never changes their status.
func (s *SQLStore) ListCommands(ctx context.Context, f CommandFilter) ([]*Command, error) {
	var where []string
	var args []any
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT seq, id, tenant_id, name, args_json, status, created_at, processed_at FROM commands`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq LIMIT ?"
	args = append(args, normalizeLimit(f.Limit))

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("listing commands", err)
	}
	defer rows.Close()

	cmds := []*Command{}
	for rows.Next() {
		var cmd Command
		var argsJSON, status, createdAt string
		var processedAt sql.NullString
		if err := rows.Scan(&cmd.Seq, &cmd.ID, &cmd.TenantID, &cmd.Name, &argsJSON, &status, &createdAt, &processedAt); err != nil {
			return nil, unavailable("scanning command", err)
		}
		if err := decodeCommand(&cmd, argsJSON, createdAt); err != nil {
			return nil, err
		}
		cmd.Status = CommandStatus(status)
		if processedAt.Valid {
			t, err := parseTime(processedAt.String)
			if err != nil {
				return nil, fmt.Errorf("command %s: %w", cmd.ID, err)
			}
			cmd.ProcessedAt = &t
		}
		cmds = append(cmds, &cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating commands", err)
	}
	return cmds, nil
}

func decodeCommand(cmd *Command, argsJSON, createdAt string) error {
	if err := json.Unmarshal([]byte(argsJSON), &cmd.Args); err != nil {
		return fmt.Errorf("unmarshaling args of command %s: %w", cmd.ID, err)
	}
	if cmd.Args == nil {
		cmd.Args = map[string]any{}
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return fmt.Errorf("command %s: %w", cmd.ID, err)
	}
	cmd.CreatedAt = t
	return nil
}
