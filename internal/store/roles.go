// ABOUTME: Operator entity, role assignments and store methods for authorization
// ABOUTME: The bootstrap owner is an ordinary operator row holding the owner role

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperatorStatus is whether an operator may act
type OperatorStatus string

const (
	OperatorActive   OperatorStatus = "active"
	OperatorDisabled OperatorStatus = "disabled"
)

// Operator is a control-plane user who issues commands and manages tenants
type Operator struct {
	ID          string
	DisplayName string
	Status      OperatorStatus
	CreatedAt   time.Time
}

// RoleName represents a role that can be assigned
type RoleName string

const (
	RoleOwner     RoleName = "owner"
	RoleAdmin     RoleName = "admin"
	RoleModerator RoleName = "moderator"
)

// ValidRoleNames lists all valid role names
var ValidRoleNames = []RoleName{
	RoleOwner,
	RoleAdmin,
	RoleModerator,
}

// IsValidRole reports whether r is one of ValidRoleNames
func IsValidRole(r RoleName) bool {
	for _, v := range ValidRoleNames {
		if v == r {
			return true
		}
	}
	return false
}

// CreateOperator inserts an operator. ID, status and CreatedAt default when unset.
func (s *SQLStore) CreateOperator(ctx context.Context, op *Operator) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.Status == "" {
		op.Status = OperatorActive
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO operators (id, display_name, status, created_at) VALUES (?, ?, ?, ?)`,
		op.ID, op.DisplayName, op.Status, formatTime(op.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return unavailable("inserting operator", err)
	}

	s.logger.Debug("created operator", "id", op.ID, "display_name", op.DisplayName)
	return nil
}

// GetOperator retrieves an operator by ID
func (s *SQLStore) GetOperator(ctx context.Context, id string) (*Operator, error) {
	row := s.queryRow(ctx, `SELECT id, display_name, status, created_at FROM operators WHERE id = ?`, id)
	return scanOperator(row)
}

// ListOperators returns all operators, oldest first
func (s *SQLStore) ListOperators(ctx context.Context) ([]*Operator, error) {
	rows, err := s.query(ctx, `SELECT id, display_name, status, created_at FROM operators ORDER BY created_at, id`)
	if err != nil {
		return nil, unavailable("listing operators", err)
	}
	defer rows.Close()

	ops := []*Operator{}
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating operators", err)
	}
	return ops, nil
}

// CountOperators is used by bootstrap to refuse running twice
func (s *SQLStore) CountOperators(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n); err != nil {
		return 0, unavailable("counting operators", err)
	}
	return n, nil
}

func scanOperator(row rowScanner) (*Operator, error) {
	var op Operator
	var status, createdAt string
	err := row.Scan(&op.ID, &op.DisplayName, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scanning operator", err)
	}
	op.Status = OperatorStatus(status)
	if op.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("operator %s: %w", op.ID, err)
	}
	return &op, nil
}

// AddRole adds a role to an operator. This operation is idempotent - adding an
// existing role succeeds silently.
func (s *SQLStore) AddRole(ctx context.Context, operatorID string, role RoleName) error {
	query := `
		INSERT INTO roles (operator_id, role, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (operator_id, role) DO NOTHING
	`

	_, err := s.exec(ctx, query, operatorID, role, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("adding role: %w", err)
	}

	s.logger.Debug("added role", "operator_id", operatorID, "role", role)
	return nil
}

// RemoveRole removes a role from an operator. This operation is idempotent -
// removing a non-existent role succeeds silently.
func (s *SQLStore) RemoveRole(ctx context.Context, operatorID string, role RoleName) error {
	_, err := s.exec(ctx, `DELETE FROM roles WHERE operator_id = ? AND role = ?`, operatorID, role)
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}

	s.logger.Debug("removed role", "operator_id", operatorID, "role", role)
	return nil
}

// HasRole checks if an operator has a specific role. Returns false for
// non-existent operators (not an error).
func (s *SQLStore) HasRole(ctx context.Context, operatorID string, role RoleName) (bool, error) {
	var count int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM roles WHERE operator_id = ? AND role = ?`,
		operatorID, role).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return count > 0, nil
}

// ListRoles returns all roles assigned to an operator. Returns an empty slice
// if the operator has no roles.
func (s *SQLStore) ListRoles(ctx context.Context, operatorID string) ([]RoleName, error) {
	rows, err := s.query(ctx, `SELECT role FROM roles WHERE operator_id = ? ORDER BY role`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []RoleName
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, RoleName(role))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}

	// Return empty slice (not nil) if no roles
	if roles == nil {
		roles = []RoleName{}
	}

	return roles, nil
}
