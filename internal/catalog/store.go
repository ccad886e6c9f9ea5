package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed title catalog.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already initialized database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddTitle registers a ROM. Adding an existing ROM updates its display name.
func (s *Store) AddTitle(ctx context.Context, fileName, displayName string) (*Title, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, errors.New("title file name is empty")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = DisplayNameFor(fileName)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO titles (file_name, display_name) VALUES (?, ?)
		 ON CONFLICT(file_name) DO UPDATE SET display_name = excluded.display_name`,
		fileName, displayName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add title: %w", err)
	}
	return s.GetTitle(ctx, fileName)
}

// GetTitle loads a title and its savestates.
func (s *Store) GetTitle(ctx context.Context, fileName string) (*Title, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT file_name, display_name, last_played, auto_save_index FROM titles WHERE file_name = ?",
		fileName,
	)
	title, err := scanTitle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTitleNotFound, fileName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get title: %w", err)
	}
	if err := s.loadSavestates(ctx, title); err != nil {
		return nil, err
	}
	return title, nil
}

// ListTitles returns every title, most recently played first.
func (s *Store) ListTitles(ctx context.Context) ([]*Title, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name, display_name, last_played, auto_save_index FROM titles
		 ORDER BY last_played IS NULL, last_played DESC, file_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	defer rows.Close()

	var titles []*Title
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}

	for _, title := range titles {
		if err := s.loadSavestates(ctx, title); err != nil {
			return nil, err
		}
	}
	return titles, nil
}

// MostRecentTitle returns the title played last.
func (s *Store) MostRecentTitle(ctx context.Context) (*Title, error) {
	var fileName string
	err := s.db.QueryRowContext(ctx,
		"SELECT file_name FROM titles WHERE last_played IS NOT NULL ORDER BY last_played DESC LIMIT 1",
	).Scan(&fileName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no title played yet", ErrTitleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find most recent title: %w", err)
	}
	return s.GetTitle(ctx, fileName)
}

// MarkPlayed sets the last-played time of a title.
func (s *Store) MarkPlayed(ctx context.Context, fileName string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE titles SET last_played = ? WHERE file_name = ?",
		at.UTC(), fileName,
	)
	if err != nil {
		return fmt.Errorf("failed to mark title played: %w", err)
	}
	return requireRow(res, fileName)
}

// RecordSavestate stores (or replaces) the savestate of a slot.
func (s *Store) RecordSavestate(ctx context.Context, fileName string, slot int, saveFile string, at time.Time) error {
	if slot < 0 || slot > MaxSlot {
		return fmt.Errorf("invalid savestate slot %d (expected 0-%d)", slot, MaxSlot)
	}
	if saveFile == "" {
		saveFile = SavestateFileName(fileName, slot)
	}

	var saveTime interface{}
	if !at.Equal(NeverSaved) {
		saveTime = at.UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO savestates (title_file_name, slot, file_name, save_time) VALUES (?, ?, ?, ?)
		 ON CONFLICT(title_file_name, slot) DO UPDATE SET file_name = excluded.file_name, save_time = excluded.save_time`,
		fileName, slot, saveFile, saveTime,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("%w: %s", ErrTitleNotFound, fileName)
		}
		return fmt.Errorf("failed to record savestate: %w", err)
	}
	return nil
}

// TitleForSaveFile finds the title owning a save file. The returned savestate
// is nil when saveFile is the title's cartridge save.
func (s *Store) TitleForSaveFile(ctx context.Context, saveFile string) (*Title, *Savestate, error) {
	var owner string
	var slot int
	err := s.db.QueryRowContext(ctx,
		"SELECT title_file_name, slot FROM savestates WHERE file_name = ? LIMIT 1",
		saveFile,
	).Scan(&owner, &slot)
	switch {
	case err == nil:
		title, err := s.GetTitle(ctx, owner)
		if err != nil {
			return nil, nil, err
		}
		state, _ := title.Savestate(slot)
		return title, &state, nil
	case err != sql.ErrNoRows:
		return nil, nil, fmt.Errorf("failed to look up save file: %w", err)
	}

	titles, err := s.ListTitles(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, title := range titles {
		if strings.EqualFold(title.CartridgeSaveName(), saveFile) {
			return title, nil, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no title owns %s", ErrTitleNotFound, saveFile)
}

// SetAutoSaveIndex persists the rotation index of a title.
func (s *Store) SetAutoSaveIndex(ctx context.Context, fileName string, index int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE titles SET auto_save_index = ? WHERE file_name = ?",
		index, fileName,
	)
	if err != nil {
		return fmt.Errorf("failed to commit rotation index: %w", err)
	}
	return requireRow(res, fileName)
}

// LoadWatermark returns the time of the last completed auto backup, or
// NeverSaved.
func (s *Store) LoadWatermark(ctx context.Context) (time.Time, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT last_auto_backup FROM backup_state WHERE id = 1",
	).Scan(&ts)
	if err == sql.ErrNoRows || (err == nil && !ts.Valid) {
		return NeverSaved, nil
	}
	if err != nil {
		return NeverSaved, fmt.Errorf("failed to load backup watermark: %w", err)
	}
	return ts.Time.UTC(), nil
}

// SaveWatermark persists the time of the last completed auto backup.
func (s *Store) SaveWatermark(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backup_state (id, last_auto_backup) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_auto_backup = excluded.last_auto_backup`,
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save backup watermark: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTitle(row rowScanner) (*Title, error) {
	var (
		title      Title
		lastPlayed sql.NullTime
		autoIndex  sql.NullInt64
	)
	if err := row.Scan(&title.FileName, &title.DisplayName, &lastPlayed, &autoIndex); err != nil {
		return nil, err
	}
	if lastPlayed.Valid {
		title.LastPlayed = lastPlayed.Time.UTC()
	}
	if autoIndex.Valid {
		idx := int(autoIndex.Int64)
		title.AutoSaveIndex = &idx
	}
	return &title, nil
}

func (s *Store) loadSavestates(ctx context.Context, title *Title) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, file_name, save_time FROM savestates WHERE title_file_name = ? ORDER BY slot",
		title.FileName,
	)
	if err != nil {
		return fmt.Errorf("failed to load savestates: %w", err)
	}
	defer rows.Close()

	title.Savestates = nil
	for rows.Next() {
		var (
			state    Savestate
			saveTime sql.NullTime
		)
		if err := rows.Scan(&state.Slot, &state.FileName, &saveTime); err != nil {
			return fmt.Errorf("failed to scan savestate: %w", err)
		}
		if saveTime.Valid {
			state.SaveTime = saveTime.Time.UTC()
		}
		title.Savestates = append(title.Savestates, state)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load savestates: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, fileName string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTitleNotFound, fileName)
	}
	return nil
}
