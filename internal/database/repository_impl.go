package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// sqlxRepository hält die DB-Verbindung und implementiert beide Repository-Interfaces.
type sqlxRepository struct {
	db *sqlx.DB
}

var _ UserRepository = (*sqlxRepository)(nil)
var _ SecurityProfileRepository = (*sqlxRepository)(nil)
var _ DBPinger = (*sqlxRepository)(nil)

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &sqlxRepository{db: db}
}

func NewSecurityProfileRepository(db *sqlx.DB) SecurityProfileRepository {
	return &sqlxRepository{db: db}
}

func (r *sqlxRepository) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx führt fn in einer Transaktion aus; jeder Fehler führt zum Rollback.
func (r *sqlxRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fehler beim Starten der Transaktion: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback fehlgeschlagen", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fehler beim Commit der Transaktion: %w", err)
	}
	return nil
}

// isDuplicateKey erkennt Unique-Verletzungen von MySQL (1062) und sqlite (Tests).
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
