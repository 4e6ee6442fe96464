package primarydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/logger"
	_ "modernc.org/sqlite"
)

const modColumns = `m.id, m.team_id, m.title, m.description, m.downloads, m.follows, m.icon_url,
	m.published, m.updated, s.status, m.slug, m.is_nsfw`

type Store struct {
	db     *sql.DB
	driver string
	logger logger.Logger
}

func New(logger logger.Logger, cfg *config.Config) (*Store, error) {
	return Open(logger, cfg.GetDatabaseDriver(), cfg.GetDatabaseDSN())
}

// Open connects to the primary store and makes sure the schema exists.
func Open(logger logger.Logger, driver string, dsn string) (*Store, error) {
	if driver == config.DatabaseDriverSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			logger.Error("failed to create database directory", "err", err.Error(), "dsn", dsn)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Error("failed to open primary store", "err", err.Error(), "driver", driver)
		return nil, fmt.Errorf("failed to open primary store: %w", err)
	}

	store := &Store{db: db, driver: driver, logger: logger}

	if driver == config.DatabaseDriverSQLite {
		if err := store.applyPragmas(); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		logger.Error("failed to reach primary store", "err", err.Error(), "driver", driver)
		return nil, fmt.Errorf("failed to reach primary store: %w", err)
	}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) applyPragmas() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			s.logger.Error("failed to apply pragma", "pragma", p, "err", err.Error())
			return fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, statement := range schemaFor(s.driver) {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			s.logger.Error("failed to apply schema", "err", err.Error())
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	for i, status := range AllStatuses {
		if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO statuses (id, status) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`), i+1, status.String()); err != nil {
			s.logger.Error("failed to seed statuses", "err", err.Error())
			return fmt.Errorf("failed to seed statuses: %w", err)
		}
	}
	return nil
}

// GetMod returns one mod with its resolved status, or ErrNotFound.
func (s *Store) GetMod(ctx context.Context, id ModID) (*Mod, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+modColumns+`
		FROM mods m INNER JOIN statuses s ON s.id = m.status
		WHERE m.id = ?`), int64(id))

	mod, err := scanMod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mod %s: %w", id, ErrNotFound)
	}
	if err != nil {
		s.logger.Error("failed to get mod", "mod_id", id.String(), "err", err.Error())
		return nil, fmt.Errorf("failed to get mod %s: %w", id, err)
	}
	return mod, nil
}

// ListMods returns up to limit mods with an id greater than afterID, ordered by id.
// Paging by id keeps memory bounded while scanning the whole table.
func (s *Store) ListMods(ctx context.Context, afterID ModID, limit int) ([]Mod, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+modColumns+`
		FROM mods m INNER JOIN statuses s ON s.id = m.status
		WHERE m.id > ?
		ORDER BY m.id
		LIMIT ?`), int64(afterID), limit)
	if err != nil {
		s.logger.Error("failed to list mods", "after_id", afterID.String(), "err", err.Error())
		return nil, fmt.Errorf("failed to list mods: %w", err)
	}
	defer rows.Close()

	mods := make([]Mod, 0, limit)
	for rows.Next() {
		mod, err := scanMod(rows)
		if err != nil {
			s.logger.Error("failed to scan mod", "err", err.Error())
			return nil, fmt.Errorf("failed to scan mod: %w", err)
		}
		mods = append(mods, *mod)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("failed to iterate mods", "err", err.Error())
		return nil, fmt.Errorf("failed to iterate mods: %w", err)
	}
	return mods, nil
}

func (s *Store) CountMods(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mods`).Scan(&count); err != nil {
		s.logger.Error("failed to count mods", "err", err.Error())
		return 0, fmt.Errorf("failed to count mods: %w", err)
	}
	return count, nil
}

// GetOwner resolves the user holding the owner role in a team.
func (s *Store) GetOwner(ctx context.Context, teamID int64) (*Owner, error) {
	var owner Owner
	var userID int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT u.id, u.username FROM users u
		INNER JOIN team_members tm ON tm.user_id = u.id
		WHERE tm.team_id = ? AND tm.role = ?
		ORDER BY u.id
		LIMIT 1`), teamID, OwnerRole).Scan(&userID, &owner.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner of team %d: %w", teamID, ErrNotFound)
	}
	if err != nil {
		s.logger.Error("failed to get team owner", "team_id", teamID, "err", err.Error())
		return nil, fmt.Errorf("failed to get owner of team %d: %w", teamID, err)
	}
	owner.ID = UserID(userID)
	return &owner, nil
}

func (s *Store) GetCategories(ctx context.Context, id ModID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT c.category
		FROM mods_categories mc
			INNER JOIN categories c ON mc.joining_category_id = c.id
		WHERE mc.joining_mod_id = ?
		ORDER BY c.category`), int64(id))
	if err != nil {
		s.logger.Error("failed to get categories", "mod_id", id.String(), "err", err.Error())
		return nil, fmt.Errorf("failed to get categories of mod %s: %w", id, err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("failed to iterate categories", "mod_id", id.String(), "err", err.Error())
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// CreateMod inserts a mod and its category links in one transaction.
func (s *Store) CreateMod(ctx context.Context, mod NewMod) error {
	published := mod.Published
	if published.IsZero() {
		published = time.Now().UTC()
	}

	return s.runTx(ctx, func(tx *sql.Tx) error {
		statusID, err := s.statusID(ctx, tx, mod.Status)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO mods
			(id, team_id, title, description, downloads, follows, icon_url, published, updated, status, slug, is_nsfw)
			VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?)`),
			int64(mod.ID), mod.TeamID, mod.Title, mod.Description, nullString(mod.IconURL),
			published, published, statusID, nullString(mod.Slug), mod.IsNSFW); err != nil {
			s.logger.Error("failed to insert mod", "mod_id", mod.ID.String(), "err", err.Error())
			return fmt.Errorf("failed to insert mod %s: %w", mod.ID, err)
		}

		return s.setCategories(ctx, tx, mod.ID, mod.Categories)
	})
}

// UpdateMod applies an edit and returns the status the mod had before it.
func (s *Store) UpdateMod(ctx context.Context, id ModID, update ModUpdate) (Status, error) {
	var previous Status

	err := s.runTx(ctx, func(tx *sql.Tx) error {
		var statusName string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT s.status FROM mods m
			INNER JOIN statuses s ON s.id = m.status
			WHERE m.id = ?`), int64(id)).Scan(&statusName)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mod %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get status of mod %s: %w", id, err)
		}
		previous = ParseStatus(statusName)

		if update.Title != nil {
			if err := s.exec(ctx, tx, `UPDATE mods SET title = ? WHERE id = ?`, *update.Title, int64(id)); err != nil {
				return err
			}
		}
		if update.Description != nil {
			if err := s.exec(ctx, tx, `UPDATE mods SET description = ? WHERE id = ?`, *update.Description, int64(id)); err != nil {
				return err
			}
		}
		if update.Status != nil {
			statusID, err := s.statusID(ctx, tx, *update.Status)
			if err != nil {
				return err
			}
			if err := s.exec(ctx, tx, `UPDATE mods SET status = ? WHERE id = ?`, statusID, int64(id)); err != nil {
				return err
			}
		}
		if update.Categories != nil {
			if err := s.exec(ctx, tx, `DELETE FROM mods_categories WHERE joining_mod_id = ?`, int64(id)); err != nil {
				return err
			}
			if err := s.setCategories(ctx, tx, id, update.Categories); err != nil {
				return err
			}
		}

		return s.exec(ctx, tx, `UPDATE mods SET updated = ? WHERE id = ?`, time.Now().UTC(), int64(id))
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to update mod", "mod_id", id.String(), "err", err.Error())
		}
		return StatusUnknown, err
	}

	return previous, nil
}

// DeleteMod removes a mod and its join rows. It reports whether the mod existed.
func (s *Store) DeleteMod(ctx context.Context, id ModID) (bool, error) {
	var deleted bool

	err := s.runTx(ctx, func(tx *sql.Tx) error {
		if err := s.exec(ctx, tx, `DELETE FROM mods_categories WHERE joining_mod_id = ?`, int64(id)); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM mods WHERE id = ?`), int64(id))
		if err != nil {
			return fmt.Errorf("failed to delete mod %s: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		s.logger.Error("failed to delete mod", "mod_id", id.String(), "err", err.Error())
		return false, err
	}

	return deleted, nil
}

func (s *Store) CreateUser(ctx context.Context, id UserID, username string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (id, username) VALUES (?, ?)`), int64(id), username); err != nil {
		s.logger.Error("failed to insert user", "user_id", id.String(), "err", err.Error())
		return fmt.Errorf("failed to insert user %s: %w", id, err)
	}
	return nil
}

func (s *Store) AddTeamMember(ctx context.Context, teamID int64, userID UserID, role string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO team_members (team_id, user_id, role) VALUES (?, ?, ?)`), teamID, int64(userID), role); err != nil {
		s.logger.Error("failed to insert team member", "team_id", teamID, "user_id", userID.String(), "err", err.Error())
		return fmt.Errorf("failed to add member %s to team %d: %w", userID, teamID, err)
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, category string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO categories (category) VALUES (?) ON CONFLICT (category) DO NOTHING`), category); err != nil {
		s.logger.Error("failed to insert category", "category", category, "err", err.Error())
		return fmt.Errorf("failed to insert category %s: %w", category, err)
	}
	return nil
}

func (s *Store) setCategories(ctx context.Context, tx *sql.Tx, id ModID, categories []string) error {
	for _, category := range categories {
		var categoryID int64
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM categories WHERE category = ?`), category).Scan(&categoryID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %s: %w", category, ErrUnknownCategory)
		}
		if err != nil {
			return fmt.Errorf("failed to get category %s: %w", category, err)
		}
		if err := s.exec(ctx, tx, `INSERT INTO mods_categories (joining_mod_id, joining_category_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, int64(id), categoryID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) statusID(ctx context.Context, tx *sql.Tx, status Status) (int64, error) {
	var statusID int64
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM statuses WHERE status = ?`), status.String()).Scan(&statusID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("status %s: %w", status, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get status id of %s: %w", status, err)
	}
	return statusID, nil
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to execute %q: %w", strings.Fields(query)[0], err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != config.DatabaseDriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMod(row rowScanner) (*Mod, error) {
	var (
		mod     Mod
		id      int64
		iconURL sql.NullString
		slug    sql.NullString
		status  string
	)
	if err := row.Scan(&id, &mod.TeamID, &mod.Title, &mod.Description, &mod.Downloads, &mod.Follows,
		&iconURL, &mod.Published, &mod.Updated, &status, &slug, &mod.IsNSFW); err != nil {
		return nil, err
	}
	mod.ID = ModID(id)
	mod.IconURL = iconURL.String
	mod.Slug = slug.String
	mod.Status = ParseStatus(status)
	return &mod, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: len(s) > 0}
}

func schemaFor(driver string) []string {
	serial := "INTEGER"
	if driver == config.DatabaseDriverPostgres {
		serial = "SERIAL"
	}

	statements := make([]string, len(schema))
	for i, statement := range schema {
		statements[i] = strings.ReplaceAll(statement, "{{serial}}", serial)
	}
	return statements
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS statuses (
		id INTEGER PRIMARY KEY,
		status TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS team_members (
		team_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL REFERENCES users (id),
		role TEXT NOT NULL,
		PRIMARY KEY (team_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id {{serial}} PRIMARY KEY,
		category TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS mods (
		id BIGINT PRIMARY KEY,
		team_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		downloads BIGINT NOT NULL DEFAULT 0,
		follows BIGINT NOT NULL DEFAULT 0,
		icon_url TEXT,
		published TIMESTAMP NOT NULL,
		updated TIMESTAMP NOT NULL,
		status INTEGER NOT NULL REFERENCES statuses (id),
		slug TEXT,
		is_nsfw BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS mods_categories (
		joining_mod_id BIGINT NOT NULL REFERENCES mods (id),
		joining_category_id INTEGER NOT NULL REFERENCES categories (id),
		PRIMARY KEY (joining_mod_id, joining_category_id)
	)`,
}
