package persistence

import (
	"LiqWatch/internal/monitor"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnapshotStore writes and reads cycle snapshots in history.snapshots. The
// full snapshot is stored as JSONB; headline figures get their own columns
// for history queries.
type SnapshotStore struct {
	db *sql.DB
}

// SnapshotMeta is one row of the snapshot history without its payload.
type SnapshotMeta struct {
	CycleID        uuid.UUID `json:"cycle_id"`
	TakenAt        time.Time `json:"taken_at"`
	ReferencePrice float64   `json:"reference_price"`
	Positions      int       `json:"positions"`
	AtRisk         int       `json:"at_risk"`
	AtRiskUSD      float64   `json:"at_risk_usd"`
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// WriteSnapshots inserts a batch in one transaction. Re-writing a cycle is
// a no-op.
func (s *SnapshotStore) WriteSnapshots(ctx context.Context, snaps []*monitor.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	query := `INSERT INTO history.snapshots
		(cycle_id, taken_at, reference_price, positions, at_risk, at_risk_usd, payload)
		VALUES `

	values := make([]string, 0, len(snaps))
	args := make([]interface{}, 0, len(snaps)*7)
	for i, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot %s: %w", snap.CycleID, err)
		}
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			snap.CycleID, snap.TakenAt, snap.Price.Value,
			snap.Summary.Positions, snap.Summary.AtRisk, snap.Summary.AtRiskCollateral,
			payload,
		)
	}
	query += strings.Join(values, ", ")
	query += " ON CONFLICT (cycle_id) DO NOTHING"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return tx.Commit()
}

// LoadLatest returns the most recent snapshot, or ErrNoSnapshot.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*monitor.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM history.snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap monitor.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// History lists the newest snapshots first, at most limit rows.
func (s *SnapshotStore) History(ctx context.Context, limit int) ([]SnapshotMeta, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, taken_at, reference_price, positions, at_risk, at_risk_usd
		FROM history.snapshots
		ORDER BY taken_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		if err := rows.Scan(&m.CycleID, &m.TakenAt, &m.ReferencePrice, &m.Positions, &m.AtRisk, &m.AtRiskUSD); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune deletes snapshots taken before cutoff and reports how many went.
func (s *SnapshotStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history.snapshots WHERE taken_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
