// Package storage handles database connections, schema migrations, and the
// probe history kept by the monitor, using SQLite.
package storage

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// Target is a monitored server address with its aggregate poll stats.
type Target struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Address     string    `json:"address"`
	Kind        string    `json:"kind"`
	CountryCode string    `json:"country_code"`
	Count       int64     `json:"count"`
}

// Probe is the outcome of one status query against a target.
type Probe struct {
	PolledAt  time.Time `json:"polled_at"`
	Address   string    `json:"address"`
	BuildID   string    `json:"build_id"`
	Mode      string    `json:"mode"`
	Error     string    `json:"error,omitempty"`
	PingMS    float64   `json:"ping_ms"`
	Players   int       `json:"players"`
	PlayerCap int       `json:"player_cap"`
	OK        bool      `json:"ok"`
}

// New initializes a new SQLite connection, sets connection pool parameters,
// and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertTarget inserts a new target or bumps an existing one's poll count
// and last_seen. The country code is only overwritten by a non-empty value.
func (r *Repository) UpsertTarget(t Target) error {
	query := `
	INSERT INTO targets (address, kind, country_code, count, first_seen, last_seen)
	VALUES (?, ?, ?, 1, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		count = count + 1,
		last_seen = excluded.last_seen,
		kind = excluded.kind,
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE targets.country_code END;
	`

	_, err := r.db.Exec(query, t.Address, t.Kind, t.CountryCode, t.FirstSeen, t.LastSeen)

	return err
}

// InsertProbe appends one probe outcome to the history.
func (r *Repository) InsertProbe(p Probe) error {
	query := `
	INSERT INTO probes (address, ok, build_id, players, player_cap, mode, ping_ms, error, polled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	_, err := r.db.Exec(query,
		p.Address, p.OK, p.BuildID, p.Players, p.PlayerCap, p.Mode, p.PingMS, p.Error, p.PolledAt,
	)

	return err
}

// GetTargets retrieves all targets, most recently polled first.
func (r *Repository) GetTargets() ([]Target, error) {
	rows, err := r.db.Query(`
		SELECT address, kind, country_code, count, first_seen, last_seen
		FROM targets
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(
			&t.Address, &t.Kind, &t.CountryCode, &t.Count, &t.FirstSeen, &t.LastSeen,
		); err != nil {
			continue
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return targets, nil
}

// RecentProbes retrieves up to limit probe outcomes for one target, newest
// first.
func (r *Repository) RecentProbes(address string, limit int) ([]Probe, error) {
	rows, err := r.db.Query(`
		SELECT address, ok, build_id, players, player_cap, mode, ping_ms, error, polled_at
		FROM probes
		WHERE address = ?
		ORDER BY polled_at DESC, id DESC
		LIMIT ?
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var probes []Probe
	for rows.Next() {
		var p Probe
		if err := rows.Scan(
			&p.Address, &p.OK, &p.BuildID, &p.Players, &p.PlayerCap, &p.Mode, &p.PingMS, &p.Error, &p.PolledAt,
		); err != nil {
			continue
		}
		probes = append(probes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return probes, nil
}

// DeleteTarget removes a target and its probe history.
func (r *Repository) DeleteTarget(address string) error {
	if _, err := r.db.Exec(`DELETE FROM probes WHERE address = ?`, address); err != nil {
		return err
	}

	_, err := r.db.Exec(`DELETE FROM targets WHERE address = ?`, address)

	return err
}

// PruneProbes deletes probe rows older than the cutoff and returns how many
// were removed.
func (r *Repository) PruneProbes(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM probes WHERE polled_at < ?`, before)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
