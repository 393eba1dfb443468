package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

type DB struct {
	*sqlx.DB
}

// ConnectDB öffnet den MySQL-Pool. parseTime wird erzwungen, damit DATETIME-Spalten als time.Time ankommen.
func ConnectDB(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL darf nicht leer sein")
	}

	dsnConfig, err := mysql.ParseDSN(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ungültige DATABASE_URL: %w", err)
	}
	dsnConfig.ParseTime = true
	dsnConfig.Loc = time.UTC

	db, err := sqlx.ConnectContext(ctx, "mysql", dsnConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("fehler beim Verbinden zur Datenbank: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("Erfolgreich mit der Datenbank verbunden", slog.String("database", dsnConfig.DBName))
	return &DB{db}, nil
}

// DatabaseName liefert den Schemanamen aus einem MySQL-DSN (für die Migrationen).
func DatabaseName(databaseURL string) (string, error) {
	dsnConfig, err := mysql.ParseDSN(databaseURL)
	if err != nil {
		return "", fmt.Errorf("ungültige DATABASE_URL: %w", err)
	}
	if dsnConfig.DBName == "" {
		return "", fmt.Errorf("DATABASE_URL enthält keinen Datenbanknamen")
	}
	return dsnConfig.DBName, nil
}

func (db *DB) Close() error {
	slog.Info("Schließe Datenbankverbindung...")
	return db.DB.Close()
}
