// Package storage persists business records in a single-file SQLite database,
// the .db export format.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rendis/mapsift/internal/model"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

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
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS businesses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_key TEXT,
		name TEXT NOT NULL,
		place_id TEXT,
		google_maps_url TEXT,
		type TEXT,
		price_level TEXT,
		rating REAL,
		reviews_count INTEGER,
		total_reviews INTEGER,
		address_full TEXT,
		street TEXT,
		city TEXT,
		state TEXT,
		zip_code TEXT,
		country TEXT,
		lat REAL,
		lng REAL,
		distance_from_center INTEGER,
		phone TEXT,
		whatsapp TEXT,
		email TEXT,
		website TEXT,
		description TEXT,
		opening_hours TEXT,
		amenities TEXT,
		image_url TEXT,
		plus_code TEXT,
		scraped_at DATETIME,
		query TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(record_key, query)
	);
	CREATE INDEX IF NOT EXISTS idx_businesses_query ON businesses(query);
	CREATE INDEX IF NOT EXISTS idx_businesses_rating ON businesses(rating);
	CREATE INDEX IF NOT EXISTS idx_businesses_coords ON businesses(lat, lng);
	CREATE INDEX IF NOT EXISTS idx_businesses_zip ON businesses(zip_code);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// InsertBatch stores records under query in one transaction. Records whose
// key is already stored for the same query are skipped; records without a key
// are always stored. The number of new rows is returned.
func (s *Store) InsertBatch(query string, records []model.BusinessRecord) (int, error) {
	keys := make([]sql.NullString, len(records))
	for i := range records {
		keys[i] = recordKey(records[i].Key())
	}
	return s.insert(query, records, keys)
}

func recordKey(k string) sql.NullString {
	return sql.NullString{String: k, Valid: k != ""}
}

func (s *Store) insert(query string, records []model.BusinessRecord, keys []sql.NullString) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO businesses
		(record_key, name, place_id, google_maps_url, type, price_level, rating,
		 reviews_count, total_reviews, address_full, street, city, state, zip_code,
		 country, lat, lng, distance_from_center, phone, whatsapp, email, website,
		 description, opening_hours, amenities, image_url, plus_code, scraped_at, query)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, b := range records {
		hours, _ := json.Marshal(b.OpeningHours)
		amenities, _ := json.Marshal(b.Amenities)
		a := b.Address

		res, err := stmt.Exec(
			keys[i], b.Name, b.PlaceID, b.GoogleMapsURL, b.Type, b.PriceLevel, b.Rating,
			b.ReviewsCount, b.TotalReviews, a.Full, a.Street, a.City, a.State, a.ZipCode,
			a.Country, b.Coordinates.Latitude, b.Coordinates.Longitude, b.DistanceFromCenter,
			b.Phone, b.WhatsApp, b.Email, b.Website,
			b.Description, string(hours), string(amenities), b.ImageURL, b.PlusCode,
			b.ScrapedAt.UTC().Format(time.RFC3339Nano), query,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("inserting %q: %w", b.Name, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}

	return inserted, nil
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM businesses").Scan(&count)
	return count, err
}

// Records returns every stored record in insertion order.
func (s *Store) Records() ([]model.BusinessRecord, error) {
	rows, err := s.db.Query(`
		SELECT name, place_id, google_maps_url, type, price_level, rating,
		       reviews_count, total_reviews, address_full, street, city, state, zip_code,
		       country, lat, lng, distance_from_center, phone, whatsapp, email, website,
		       description, opening_hours, amenities, image_url, plus_code, scraped_at
		FROM businesses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying businesses: %w", err)
	}
	defer rows.Close()

	records := []model.BusinessRecord{}
	for rows.Next() {
		var (
			b                   model.BusinessRecord
			placeID, mapsURL    sql.NullString
			typ, price          sql.NullString
			full, street, city  sql.NullString
			state, zip, country sql.NullString
			phone, wa, email    sql.NullString
			website, desc       sql.NullString
			hours, amenities    sql.NullString
			image, plus         sql.NullString
			scraped             sql.NullString
			rating, lat, lng    sql.NullFloat64
			reviews, total      sql.NullInt64
			distance            sql.NullInt64
		)
		if err := rows.Scan(
			&b.Name, &placeID, &mapsURL, &typ, &price, &rating,
			&reviews, &total, &full, &street, &city, &state, &zip,
			&country, &lat, &lng, &distance, &phone, &wa, &email, &website,
			&desc, &hours, &amenities, &image, &plus, &scraped,
		); err != nil {
			return nil, fmt.Errorf("scanning business: %w", err)
		}

		b.PlaceID, b.GoogleMapsURL = placeID.String, mapsURL.String
		b.Type, b.PriceLevel = typ.String, price.String
		if rating.Valid {
			b.Rating = &rating.Float64
		}
		b.ReviewsCount, b.TotalReviews = int(reviews.Int64), int(total.Int64)
		b.Address = model.Address{
			Full: full.String, Street: street.String, City: city.String,
			State: state.String, ZipCode: zip.String, Country: country.String,
		}
		if lat.Valid && lng.Valid {
			b.Coordinates = model.NewCoordinates(lat.Float64, lng.Float64)
		}
		if distance.Valid {
			b.SetDistance(int(distance.Int64))
		}
		b.Phone, b.WhatsApp, b.Email, b.Website = phone.String, wa.String, email.String, website.String
		b.Description, b.ImageURL, b.PlusCode = desc.String, image.String, plus.String

		b.OpeningHours = []model.OpeningHours{}
		b.Amenities = []string{}
		if hours.Valid && hours.String != "" {
			_ = json.Unmarshal([]byte(hours.String), &b.OpeningHours)
		}
		if amenities.Valid && amenities.String != "" {
			_ = json.Unmarshal([]byte(amenities.String), &b.Amenities)
		}
		if b.OpeningHours == nil {
			b.OpeningHours = []model.OpeningHours{}
		}
		if b.Amenities == nil {
			b.Amenities = []string{}
		}
		if t, err := time.Parse(time.RFC3339Nano, scraped.String); err == nil {
			b.ScrapedAt = t
		}
		records = append(records, b)
	}
	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes records to a fresh database file, replacing any existing one.
// Every record becomes a row; a key repeated within records is kept only on
// its first row.
func Save(dbPath, query string, records []model.BusinessRecord) (int, error) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("replacing %s: %w", dbPath, err)
		}
	}

	store, err := NewStore(dbPath)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	seen := make(map[string]bool, len(records))
	keys := make([]sql.NullString, len(records))
	for i := range records {
		k := records[i].Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		keys[i] = recordKey(k)
	}
	return store.insert(query, records, keys)
}

// Load reads every record from a database file.
func Load(dbPath string) ([]model.BusinessRecord, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Records()
}
