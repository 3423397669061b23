/*
Copyright © 2018 the PipeMSX authors.
This file is part of PipeMSX.

PipeMSX is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

PipeMSX is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with PipeMSX.  If not, see <http://www.gnu.org/licenses/>.
*/

package pipemsxutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Register the sqlite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/spatialmodel/pipemsx"
)

const schema = `
CREATE TABLE run (
	id TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	title TEXT NOT NULL,
	digest TEXT NOT NULL
);

CREATE TABLE series (
	id INTEGER PRIMARY KEY,
	kind TEXT NOT NULL,
	element TEXT NOT NULL,
	species TEXT NOT NULL,
	units TEXT NOT NULL,
	invalid_from REAL
);

CREATE TABLE samples (
	series_id INTEGER NOT NULL REFERENCES series(id),
	time REAL NOT NULL,
	value REAL NOT NULL
);

CREATE INDEX idx_samples_series_time ON samples(series_id, time);

CREATE TABLE failures (
	kind TEXT NOT NULL,
	element TEXT NOT NULL,
	step INTEGER NOT NULL,
	time REAL NOT NULL,
	message TEXT NOT NULL
);
`

// isDatabase returns whether results should be written to path as a
// sqlite database rather than in gob format.
func isDatabase(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// WriteDatabase writes r to a new sqlite database at path, replacing
// any existing file.
func WriteDatabase(path, title string, r *pipemsx.Results) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pipemsx: removing old database: %v", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("pipemsx: opening database: %v", err)
	}
	defer db.Close()
	if _, err = db.Exec(schema); err != nil {
		return fmt.Errorf("pipemsx: creating database schema: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("pipemsx: writing database: %v", err)
	}
	if err = writeResults(tx, title, r); err != nil {
		tx.Rollback()
		return fmt.Errorf("pipemsx: writing database: %v", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("pipemsx: writing database: %v", err)
	}
	return nil
}

func writeResults(tx *sql.Tx, title string, r *pipemsx.Results) error {
	if _, err := tx.Exec(`INSERT INTO run (id, version, title, digest) VALUES (?, ?, ?, ?)`,
		r.RunID.String(), pipemsx.Version, title, r.Digest()); err != nil {
		return err
	}
	seriesStmt, err := tx.Prepare(`INSERT INTO series (id, kind, element, species, units, invalid_from) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer seriesStmt.Close()
	sampleStmt, err := tx.Prepare(`INSERT INTO samples (series_id, time, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sampleStmt.Close()

	for i, s := range r.Series {
		var invalidFrom interface{}
		if s.Invalid {
			invalidFrom = s.InvalidFrom
		}
		if _, err := seriesStmt.Exec(i, s.Kind.String(), s.Element, s.Species, s.Units, invalidFrom); err != nil {
			return err
		}
		for j, v := range s.Values {
			if _, err := sampleStmt.Exec(i, r.Times[j], v); err != nil {
				return err
			}
		}
	}
	for _, f := range r.Failures {
		if _, err := tx.Exec(`INSERT INTO failures (kind, element, step, time, message) VALUES (?, ?, ?, ?, ?)`,
			f.Kind.String(), f.Element, f.Step, f.Time, f.Err.Error()); err != nil {
			return err
		}
	}
	return nil
}

// writeOutput saves r to path, as a sqlite database or in gob format
// depending on the file extension.
func writeOutput(path, title string, r *pipemsx.Results) error {
	if isDatabase(path) {
		return WriteDatabase(path, title, r)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipemsx: creating output file: %v", err)
	}
	if err := r.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("pipemsx: writing output file: %v", err)
	}
	return f.Close()
}
