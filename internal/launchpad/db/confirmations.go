package db

import (
	"fmt"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// SavePendingConfirmation upserts a pending confirmation record,
// implementing both orchestrator.Store (initial insert at broadcast
// time) and confirmation.Store (SaveConfirmation, recheck updates).
func (d *DB) SavePendingConfirmation(p domain.PendingConfirmation) error {
	_, err := d.conn.Exec(`
		INSERT INTO pending_confirmations (
			txid, process_id, required_confirmations, last_checked_at,
			attempts, provider, broadcast_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(txid) DO UPDATE SET
			required_confirmations = excluded.required_confirmations,
			last_checked_at = excluded.last_checked_at,
			attempts = excluded.attempts,
			provider = excluded.provider
	`,
		p.Txid, p.ProcessID, p.RequiredConfirmations, p.LastCheckedAt,
		p.Attempts, p.Provider, p.BroadcastAt,
	)
	if err != nil {
		return fmt.Errorf("save pending confirmation %s: %w", p.Txid, err)
	}
	return nil
}

// SaveConfirmation is confirmation.Store's name for the same upsert.
func (d *DB) SaveConfirmation(p domain.PendingConfirmation) error {
	return d.SavePendingConfirmation(p)
}

// PendingConfirmations returns every outstanding confirmation entry.
func (d *DB) PendingConfirmations() ([]domain.PendingConfirmation, error) {
	rows, err := d.conn.Query(`
		SELECT txid, process_id, required_confirmations, last_checked_at,
		       attempts, provider, broadcast_at
		FROM pending_confirmations
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending confirmations: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingConfirmation
	for rows.Next() {
		var p domain.PendingConfirmation
		if err := rows.Scan(&p.Txid, &p.ProcessID, &p.RequiredConfirmations, &p.LastCheckedAt,
			&p.Attempts, &p.Provider, &p.BroadcastAt); err != nil {
			return nil, fmt.Errorf("scan pending confirmation row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RemoveConfirmation deletes a pending confirmation once it has
// advanced to Indexing or been declared lost.
func (d *DB) RemoveConfirmation(txid string) error {
	if _, err := d.conn.Exec(`DELETE FROM pending_confirmations WHERE txid = ?`, txid); err != nil {
		return fmt.Errorf("remove pending confirmation %s: %w", txid, err)
	}
	return nil
}
