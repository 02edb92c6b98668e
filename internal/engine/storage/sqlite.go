package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"

	"github.com/rendis/venuegrid/internal/model"
)

// Store wraps the directory's SQLite database. One Store is shared by the
// HTTP server and any concurrently executing runs; per-entity writes are one
// transaction each and the partial unique index on external_id is the final
// backstop against duplicate inserts across runs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// ErrDuplicateExternalID reports an insert that lost the race to another
// writer for the same external id. Callers fall through to the update path.
var ErrDuplicateExternalID = errors.New("venue with this external id already exists")

const schema = `
CREATE TABLE IF NOT EXISTS venues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	county TEXT NOT NULL DEFAULT '',
	postcode TEXT NOT NULL DEFAULT '',
	lat REAL NOT NULL DEFAULT 0,
	lng REAL NOT NULL DEFAULT 0,
	phone TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	rating REAL NOT NULL DEFAULT 0,
	rating_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	last_synced_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_external_id ON venues(external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_venues_city ON venues(city);
CREATE INDEX IF NOT EXISTS idx_venues_coords ON venues(lat, lng);

CREATE TABLE IF NOT EXISTS venue_hours (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	venue_id INTEGER NOT NULL REFERENCES venues(id),
	day INTEGER NOT NULL,
	opens TEXT NOT NULL,
	closes TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_venue_hours_venue ON venue_hours(venue_id);

CREATE TABLE IF NOT EXISTS venue_images (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	venue_id INTEGER NOT NULL REFERENCES venues(id),
	source_ref TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	UNIQUE(venue_id, source_ref)
);

CREATE TABLE IF NOT EXISTS venue_sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	venue_id INTEGER NOT NULL REFERENCES venues(id),
	provider TEXT NOT NULL,
	external_id TEXT NOT NULL,
	rating REAL NOT NULL DEFAULT 0,
	rating_count INTEGER NOT NULL DEFAULT 0,
	attributed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(venue_id, provider)
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	region_label TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	total_tiles INTEGER NOT NULL DEFAULT 0,
	completed_tiles INTEGER NOT NULL DEFAULT 0,
	discovered INTEGER NOT NULL DEFAULT 0,
	inserted INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	error_log TEXT NOT NULL DEFAULT '[]',
	config TEXT NOT NULL DEFAULT '{}',
	started_at DATETIME,
	completed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON ingestion_runs(created_at);

CREATE TABLE IF NOT EXISTS run_venues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES ingestion_runs(id),
	venue_id INTEGER NOT NULL REFERENCES venues(id),
	external_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_run_venues_run ON run_venues(run_id);
`

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// VenueByExternalID returns the venue for a non-empty external id, or nil
// when none exists.
func (s *Store) VenueByExternalID(ctx context.Context, externalID string) (*model.Venue, error) {
	if externalID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(external_id, ''), slug, name, address, city, county, postcode,
		       lat, lng, phone, website, category, rating, rating_count, status,
		       COALESCE(last_synced_at, created_at), created_at, updated_at
		FROM venues WHERE external_id = ?`, externalID)
	return scanVenue(row)
}

func scanVenue(row *sql.Row) (*model.Venue, error) {
	var v model.Venue
	err := row.Scan(&v.ID, &v.ExternalID, &v.Slug, &v.Name, &v.Address, &v.City, &v.County,
		&v.Postcode, &v.Lat, &v.Lng, &v.Phone, &v.Website, &v.Category,
		&v.Rating, &v.RatingCount, &v.Status, &v.LastSyncedAt, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning venue: %w", err)
	}
	return &v, nil
}

// InsertVenue creates a venue and its dependent rows (hours, images, source
// attribution) in one transaction. A duplicate external id returns
// ErrDuplicateExternalID so the caller can fall through to an update.
func (s *Store) InsertVenue(ctx context.Context, c model.Candidate, slug, providerName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO venues (external_id, slug, name, address, city, county, postcode,
			lat, lng, phone, website, category, rating, rating_count, status, last_synced_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ExternalID, slug, c.Name, c.Address, c.City, c.County, c.Postcode,
		c.Lat, c.Lng, c.Phone, c.Website, primaryCategory(c.Categories),
		c.Rating, c.RatingCount, model.VenueActive, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("inserting venue %q: %w", c.ExternalID, ErrDuplicateExternalID)
		}
		return 0, fmt.Errorf("inserting venue: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading venue id: %w", err)
	}

	if err := writeHours(ctx, tx, id, c.Hours); err != nil {
		return 0, err
	}
	if err := writeImages(ctx, tx, id, c.PhotoRefs); err != nil {
		return 0, err
	}
	if err := writeSource(ctx, tx, id, providerName, c); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing venue insert: %w", err)
	}
	return id, nil
}

// UpdateVenue refreshes a venue from a candidate with coalesce-preserve
// semantics: a new value overwrites the old only when non-empty, so a
// provider hiccup never erases previously-good data. Hours are fully
// replaced when the candidate supplies any; images are appended if unseen.
func (s *Store) UpdateVenue(ctx context.Context, id int64, c model.Candidate, providerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE venues SET
			name = COALESCE(NULLIF(?, ''), name),
			address = COALESCE(NULLIF(?, ''), address),
			city = COALESCE(NULLIF(?, ''), city),
			county = COALESCE(NULLIF(?, ''), county),
			postcode = COALESCE(NULLIF(?, ''), postcode),
			lat = CASE WHEN ? != 0 THEN ? ELSE lat END,
			lng = CASE WHEN ? != 0 THEN ? ELSE lng END,
			phone = COALESCE(NULLIF(?, ''), phone),
			website = COALESCE(NULLIF(?, ''), website),
			category = COALESCE(NULLIF(?, ''), category),
			rating = CASE WHEN ? > 0 THEN ? ELSE rating END,
			rating_count = CASE WHEN ? > 0 THEN ? ELSE rating_count END,
			last_synced_at = ?,
			updated_at = ?
		WHERE id = ?`,
		c.Name, c.Address, c.City, c.County, c.Postcode,
		c.Lat, c.Lat, c.Lng, c.Lng,
		c.Phone, c.Website, primaryCategory(c.Categories),
		c.Rating, c.Rating, c.RatingCount, c.RatingCount,
		now, now, id)
	if err != nil {
		return fmt.Errorf("updating venue %d: %w", id, err)
	}

	if len(c.Hours) > 0 {
		// Hours have no meaningful partial merge: delete and reinsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM venue_hours WHERE venue_id = ?`, id); err != nil {
			return fmt.Errorf("clearing hours for venue %d: %w", id, err)
		}
		if err := writeHours(ctx, tx, id, c.Hours); err != nil {
			return err
		}
	}
	if err := writeImages(ctx, tx, id, c.PhotoRefs); err != nil {
		return err
	}
	if err := writeSource(ctx, tx, id, providerName, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing venue update: %w", err)
	}
	return nil
}

func writeHours(ctx context.Context, tx *sql.Tx, venueID int64, hours []model.OpeningHours) error {
	for _, h := range hours {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO venue_hours (venue_id, day, opens, closes) VALUES (?,?,?,?)`,
			venueID, h.Day, h.Opens, h.Closes); err != nil {
			return fmt.Errorf("inserting hours for venue %d: %w", venueID, err)
		}
	}
	return nil
}

func writeImages(ctx context.Context, tx *sql.Tx, venueID int64, refs []string) error {
	for i, ref := range refs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO venue_images (venue_id, source_ref, position) VALUES (?,?,?)`,
			venueID, ref, i); err != nil {
			return fmt.Errorf("inserting image for venue %d: %w", venueID, err)
		}
	}
	return nil
}

func writeSource(ctx context.Context, tx *sql.Tx, venueID int64, providerName string, c model.Candidate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO venue_sources (venue_id, provider, external_id, rating, rating_count, attributed_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(venue_id, provider) DO UPDATE SET
			rating = excluded.rating,
			rating_count = excluded.rating_count,
			attributed_at = excluded.attributed_at`,
		venueID, providerName, c.ExternalID, c.Rating, c.RatingCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing source attribution for venue %d: %w", venueID, err)
	}
	return nil
}

// HoursForVenue returns a venue's opening hours ordered by day.
func (s *Store) HoursForVenue(ctx context.Context, venueID int64) ([]model.OpeningHours, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, opens, closes FROM venue_hours WHERE venue_id = ? ORDER BY day, opens`, venueID)
	if err != nil {
		return nil, fmt.Errorf("querying hours: %w", err)
	}
	defer rows.Close()

	var hours []model.OpeningHours
	for rows.Next() {
		var h model.OpeningHours
		if err := rows.Scan(&h.Day, &h.Opens, &h.Closes); err != nil {
			return nil, fmt.Errorf("scanning hours: %w", err)
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// ListVenues returns venues ordered by name, for the export command.
func (s *Store) ListVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(external_id, ''), slug, name, address, city, county, postcode,
		       lat, lng, phone, website, category, rating, rating_count, status,
		       COALESCE(last_synced_at, created_at), created_at, updated_at
		FROM venues ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying venues: %w", err)
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.ExternalID, &v.Slug, &v.Name, &v.Address, &v.City, &v.County,
			&v.Postcode, &v.Lat, &v.Lng, &v.Phone, &v.Website, &v.Category,
			&v.Rating, &v.RatingCount, &v.Status, &v.LastSyncedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning venue: %w", err)
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

// CountVenues returns the total venue count.
func (s *Store) CountVenues(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n)
	return n, err
}

func primaryCategory(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	return categories[0]
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// SQLITE_CONSTRAINT_UNIQUE / SQLITE_CONSTRAINT_PRIMARYKEY
	return se.Code() == 2067 || se.Code() == 1555
}
