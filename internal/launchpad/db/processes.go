package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// SaveProcess upserts an etching process record.
func (d *DB) SaveProcess(p domain.EtchingProcess) error {
	specJSON, err := json.Marshal(p.Spec)
	if err != nil {
		return fmt.Errorf("marshal etching spec: %w", err)
	}

	_, err = d.conn.Exec(`
		INSERT INTO etching_processes (
			process_id, owner_principal, rune_name, spec_json, state,
			txid, retry_count, last_error_kind, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(process_id) DO UPDATE SET
			state = excluded.state,
			txid = excluded.txid,
			retry_count = excluded.retry_count,
			last_error_kind = excluded.last_error_kind,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`,
		p.ProcessID, string(p.OwnerPrincipal), p.RuneName, string(specJSON), string(p.State),
		p.Txid, p.RetryCount, p.LastErrorKind, p.LastError, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save etching process %s: %w", p.ProcessID, err)
	}
	return nil
}

// GetProcess loads a single etching process by id.
func (d *DB) GetProcess(processID string) (domain.EtchingProcess, bool, error) {
	row := d.conn.QueryRow(`
		SELECT process_id, owner_principal, rune_name, spec_json, state,
		       txid, retry_count, last_error_kind, last_error, created_at, updated_at
		FROM etching_processes WHERE process_id = ?
	`, processID)

	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EtchingProcess{}, false, nil
	}
	if err != nil {
		return domain.EtchingProcess{}, false, fmt.Errorf("get etching process %s: %w", processID, err)
	}
	return p, true, nil
}

// FindActiveByOwnerAndName returns the process id of an active or
// completed attempt for (owner, runeName), if one exists. A prior
// Failed attempt does not block a fresh one.
func (d *DB) FindActiveByOwnerAndName(owner domain.Principal, runeName string) (string, bool, error) {
	var processID string
	err := d.conn.QueryRow(`
		SELECT process_id FROM etching_processes
		WHERE owner_principal = ? AND rune_name = ? AND state != 'Failed'
		LIMIT 1
	`, string(owner), runeName).Scan(&processID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find active process for %s/%s: %w", owner, runeName, err)
	}
	return processID, true, nil
}

// ProcessesByOwner returns every process owned by owner, newest first.
func (d *DB) ProcessesByOwner(owner domain.Principal) ([]domain.EtchingProcess, error) {
	rows, err := d.conn.Query(`
		SELECT process_id, owner_principal, rune_name, spec_json, state,
		       txid, retry_count, last_error_kind, last_error, created_at, updated_at
		FROM etching_processes WHERE owner_principal = ?
		ORDER BY created_at DESC
	`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("query processes for owner %s: %w", owner, err)
	}
	defer rows.Close()

	var out []domain.EtchingProcess
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountByState counts processes currently in state.
func (d *DB) CountByState(state domain.EtchingState) (uint64, error) {
	var n uint64
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM etching_processes WHERE state = ?`, string(state)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processes in state %s: %w", state, err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (domain.EtchingProcess, error) {
	var p domain.EtchingProcess
	var owner, specJSON string

	if err := row.Scan(
		&p.ProcessID, &owner, &p.RuneName, &specJSON, &p.State,
		&p.Txid, &p.RetryCount, &p.LastErrorKind, &p.LastError, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.EtchingProcess{}, err
	}
	p.OwnerPrincipal = domain.Principal(owner)

	if err := json.Unmarshal([]byte(specJSON), &p.Spec); err != nil {
		slog.Error("corrupt etching spec json", "process_id", p.ProcessID, "error", err)
		return domain.EtchingProcess{}, fmt.Errorf("unmarshal spec for %s: %w", p.ProcessID, err)
	}
	return p, nil
}
