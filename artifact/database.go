package artifact

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

const classesSchema = `CREATE TABLE IF NOT EXISTS classes (
	name  TEXT PRIMARY KEY,
	bytes BLOB NOT NULL
)`

type databaseArtifact struct {
	path string
	db   *sql.DB
}

func openDatabase(path string) (*databaseArtifact, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: open database: %w", path, err)
	}
	// fail early on files that are not a class database
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM classes`).Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact %s: not a class database: %w", path, err)
	}
	return &databaseArtifact{path: path, db: db}, nil
}

func (d *databaseArtifact) Load(name string) ([]byte, error) {
	var data []byte
	err := d.db.QueryRow(`SELECT bytes FROM classes WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s in %s: %w", name, d.path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("artifact %s: load %s: %w", d.path, name, err)
	}
	return data, nil
}

func (d *databaseArtifact) Names() ([]string, error) {
	rows, err := d.db.Query(`SELECT name FROM classes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: list classes: %w", d.path, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("artifact %s: list classes: %w", d.path, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *databaseArtifact) Location() string { return d.path }

func (d *databaseArtifact) Close() error { return d.db.Close() }

// writeDatabase creates a fresh database at path holding classes.
func writeDatabase(path string, classes map[string][]byte) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("artifact %s: open database: %w", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(classesSchema); err != nil {
		return fmt.Errorf("artifact %s: create schema: %w", path, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO classes (name, bytes) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	defer stmt.Close()
	for name, data := range classes {
		if _, err := stmt.Exec(name, data); err != nil {
			tx.Rollback()
			return fmt.Errorf("artifact %s: insert %s: %w", path, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("artifact %s: commit: %w", path, err)
	}
	return nil
}
