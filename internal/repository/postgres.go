package repository

import "github.com/polyphonica/booking/pkg/database"

// NewPostgresRepositories wires the Postgres implementations; ledger changes write outbox messages for topic
func NewPostgresRepositories(db *database.PostgresDB, topic string) *Repositories {
	users := NewPostgresUserRepository(db)
	return &Repositories{
		Catalog:    NewPostgresCatalogRepository(db),
		Ledger:     NewPostgresLedgerRepository(db, topic),
		Finance:    NewPostgresFinanceRepository(db),
		Expenses:   NewPostgresExpenseRepository(db),
		Users:      users,
		Import:     users,
		Repertoire: NewPostgresRepertoireRepository(db),
		Outbox:     NewPostgresOutboxRepository(db),
	}
}
