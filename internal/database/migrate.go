package database

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// legacyVersion reports which migration an unversioned database already
// matches: 0 when it has no articles table, 2 when the articles table
// carries every annotation column, 1 otherwise.
func legacyVersion(conn *sql.DB) (int, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='articles'",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("checking for legacy tables: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	err = conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('articles')
		WHERE name IN ('location_mention', 'officials_involved', 'relevance_category')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("checking legacy columns: %w", err)
	}
	if count == 3 {
		return 2, nil
	}
	return 1, nil
}

// migrate brings the database schema up to the latest version and returns
// how many migrations ran. PRAGMA user_version tracks the applied ones.
func migrate(conn *sql.DB) (int, error) {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return 0, err
	}

	// Unversioned tables come from collector builds that predate
	// migrations or from imported article dumps.
	if current == 0 {
		legacy, err := legacyVersion(conn)
		if err != nil {
			return 0, err
		}
		if legacy > 0 {
			log.Info("detected unversioned database", "stamped_version", legacy)
			if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", legacy)); err != nil {
				return 0, fmt.Errorf("stamping legacy version: %w", err)
			}
			current = legacy
		}
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return applied, fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not apply user_version inside a transaction.
		// The DDL is idempotent, so a crash here only re-runs the step.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return applied, fmt.Errorf("setting version %d: %w", m.Version, err)
		}
		applied++
	}

	return applied, nil
}
