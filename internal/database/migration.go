package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations spielt die eingebetteten Migrationen gegen die MySQL-Datenbank dbName ein.
func RunMigrations(db *sql.DB, dbName string) error {
	slog.Info("Starte Datenbank-Migrationen...", slog.String("database", dbName))

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("fehler beim Laden der eingebetteten Migrationen: %w", err)
	}

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("fehler beim Erstellen des Migrations-Treibers: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("fehler beim Initialisieren von migrate: %w", err)
	}

	err = m.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("Datenbank ist bereits auf dem neuesten Stand.")
			return nil
		}
		return fmt.Errorf("fehler beim Ausführen der Migrationen: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("Datenbank-Migrationen erfolgreich abgeschlossen.", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}
