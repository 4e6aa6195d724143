package persistence

import (
	"LiqWatch/internal/chain"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// WatchEntry is one monitored account.
type WatchEntry struct {
	Address string    `json:"address"`
	Label   string    `json:"label,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// WatchList stores the accounts scanned every cycle. Addresses are stored
// lowercased; adding an existing address updates its label.
type WatchList interface {
	Add(ctx context.Context, address, label string) (WatchEntry, error)
	Remove(ctx context.Context, address string) error
	List(ctx context.Context) ([]WatchEntry, error)
	Addresses(ctx context.Context) ([]string, error)
}

// CanonicalAddress validates a hex address and returns its lowercase form.
func CanonicalAddress(address string) (string, error) {
	addr, err := chain.ParseAddress(strings.TrimSpace(address))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Hex()), nil
}

func addressesOf(entries []WatchEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Address
	}
	return out
}

// ============================================================================
// In-memory
// ============================================================================

// MemoryWatchList is used when no Postgres DSN is configured.
type MemoryWatchList struct {
	mu      sync.RWMutex
	entries map[string]WatchEntry
	now     func() time.Time
}

func NewMemoryWatchList() *MemoryWatchList {
	return &MemoryWatchList{entries: make(map[string]WatchEntry), now: time.Now}
}

func (m *MemoryWatchList) Add(ctx context.Context, address, label string) (WatchEntry, error) {
	addr, err := CanonicalAddress(address)
	if err != nil {
		return WatchEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[addr]
	if !ok {
		entry = WatchEntry{Address: addr, AddedAt: m.now().UTC()}
	}
	entry.Label = label
	m.entries[addr] = entry
	return entry, nil
}

func (m *MemoryWatchList) Remove(ctx context.Context, address string) error {
	addr, err := CanonicalAddress(address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[addr]; !ok {
		return fmt.Errorf("address %s: %w", addr, ErrNotFound)
	}
	delete(m.entries, addr)
	return nil
}

// List returns entries oldest first, ties broken by address.
func (m *MemoryWatchList) List(ctx context.Context) ([]WatchEntry, error) {
	m.mu.RLock()
	out := make([]WatchEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

func (m *MemoryWatchList) Addresses(ctx context.Context) ([]string, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return addressesOf(entries), nil
}

// ============================================================================
// Postgres
// ============================================================================

// PostgresWatchList persists the watch-list in watchlist.addresses.
type PostgresWatchList struct {
	db *sql.DB
}

func NewPostgresWatchList(db *sql.DB) *PostgresWatchList {
	return &PostgresWatchList{db: db}
}

func (p *PostgresWatchList) Add(ctx context.Context, address, label string) (WatchEntry, error) {
	addr, err := CanonicalAddress(address)
	if err != nil {
		return WatchEntry{}, err
	}

	entry := WatchEntry{Address: addr}
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO watchlist.addresses (address, label)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET label = EXCLUDED.label
		RETURNING label, added_at
	`, addr, label).Scan(&entry.Label, &entry.AddedAt)
	if err != nil {
		return WatchEntry{}, fmt.Errorf("add address %s: %w", addr, err)
	}
	return entry, nil
}

func (p *PostgresWatchList) Remove(ctx context.Context, address string) error {
	addr, err := CanonicalAddress(address)
	if err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `DELETE FROM watchlist.addresses WHERE address = $1`, addr)
	if err != nil {
		return fmt.Errorf("remove address %s: %w", addr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove address %s: %w", addr, err)
	}
	if n == 0 {
		return fmt.Errorf("address %s: %w", addr, ErrNotFound)
	}
	return nil
}

func (p *PostgresWatchList) List(ctx context.Context) ([]WatchEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT address, label, added_at
		FROM watchlist.addresses
		ORDER BY added_at ASC, address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var out []WatchEntry
	for rows.Next() {
		var e WatchEntry
		if err := rows.Scan(&e.Address, &e.Label, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresWatchList) Addresses(ctx context.Context) ([]string, error) {
	entries, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	return addressesOf(entries), nil
}

// Seed adds every address not yet present, keeping existing labels.
func Seed(ctx context.Context, wl WatchList, entries []WatchEntry) (int, error) {
	existing, err := wl.Addresses(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, a := range existing {
		have[a] = true
	}

	added := 0
	for _, e := range entries {
		addr, err := CanonicalAddress(e.Address)
		if err != nil {
			return added, err
		}
		if have[addr] {
			continue
		}
		if _, err := wl.Add(ctx, addr, e.Label); err != nil {
			return added, err
		}
		have[addr] = true
		added++
	}
	return added, nil
}
