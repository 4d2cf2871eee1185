package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/finsight/finance"
	"github.com/sweetpotato0/finsight/parser"
)

// PostgresStore backs both tool reads (finance.Store) and advisory
// persistence (advisor.Store) with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "finsight",
		SSLMode:  "disable",
	}
}

// NewPostgresStore connects and bootstraps the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.createTables(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		date TIMESTAMP NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(255) NOT NULL,
		amount NUMERIC(12,2) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date DESC);

	CREATE TABLE IF NOT EXISTS advisories (
		id SERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type VARCHAR(32) NOT NULL,
		priority VARCHAR(32) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_advisories_user_active ON advisories(user_id, active);
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// SearchTransactions implements finance.Store.
func (s *PostgresStore) SearchTransactions(ctx context.Context, userID, query string, limit int) ([]finance.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, description, category, amount
		FROM transactions
		WHERE user_id = $1 AND (description ILIKE '%' || $2 || '%' OR category ILIKE '%' || $2 || '%')
		ORDER BY date DESC
		LIMIT $3`,
		userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search transactions: %w", err)
	}
	defer rows.Close()

	var txns []finance.Transaction
	for rows.Next() {
		var t finance.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.Category, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// AggregateByCategory implements finance.Store.
func (s *PostgresStore) AggregateByCategory(ctx context.Context, userID string, topN int, includePositive bool) ([]finance.CategoryGroup, error) {
	query := `
		SELECT category, SUM(amount), COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND ($2 OR amount < 0)
		GROUP BY category
		ORDER BY ABS(SUM(amount)) DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, userID, includePositive, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	defer rows.Close()

	var groups []finance.CategoryGroup
	for rows.Next() {
		var g finance.CategoryGroup
		if err := rows.Scan(&g.Name, &g.Total, &g.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ReplaceActive implements advisor.Store: prior active advisories are
// deactivated and the new batch inserted in one transaction, so readers see
// either the old set or the new set, never a mix.
func (s *PostgresStore) ReplaceActive(ctx context.Context, userID string, items []parser.Advisory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE advisories SET active = FALSE WHERE user_id = $1 AND active`, userID); err != nil {
		return fmt.Errorf("failed to deactivate advisories: %w", err)
	}

	now := time.Now()
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO advisories (user_id, title, message, type, priority, active, created_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
			userID, item.Title, item.Message, string(item.Type), string(item.Priority), now); err != nil {
			return fmt.Errorf("failed to insert advisory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit advisories: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
