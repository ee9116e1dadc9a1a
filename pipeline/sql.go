package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"zozo-catalog-scraper/models"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSink persists the record set to a relational table keyed by id.
// Supported drivers are "sqlite" (modernc, file or :memory: DSN) and "pgx"
// (Postgres DSN). Rows are upserted so re-running Persist overwrites.
type SQLSink struct {
	db     *sql.DB
	driver string
	table  string
}

// NewSQLSink opens the store and creates the table if missing.
func NewSQLSink(driver, dsn, table string) (*SQLSink, error) {
	switch driver {
	case "sqlite", "pgx":
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if driver == "sqlite" && dsn != ":memory:" {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	sink := &SQLSink{db: db, driver: driver, table: table}
	if err := sink.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

func (ss *SQLSink) createTable() error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		brand TEXT,
		price_regular TEXT NOT NULL,
		price_discounted TEXT,
		rating REAL,
		review_count INTEGER NOT NULL DEFAULT 0,
		image_url TEXT,
		detail_url TEXT NOT NULL,
		scraped_at TIMESTAMP NOT NULL
	)`, ss.table)
	if _, err := ss.db.Exec(ddl); err != nil {
		return fmt.Errorf("create table %s: %w", ss.table, err)
	}
	return nil
}

// Persist upserts every record inside one transaction.
func (ss *SQLSink) Persist(records []*models.ProductRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, ss.upsertQuery())
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		var discounted *string
		if record.PriceDiscounted != nil {
			s := record.PriceDiscounted.String()
			discounted = &s
		}
		_, err := stmt.ExecContext(ctx,
			record.ID,
			record.Name,
			record.Brand,
			record.PriceRegular.String(),
			discounted,
			record.Rating,
			record.ReviewCount,
			record.ImageURL,
			record.DetailURL,
			record.ScrapedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

func (ss *SQLSink) upsertQuery() string {
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	if ss.driver == "pgx" {
		placeholders = "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10"
	}
	return fmt.Sprintf(`INSERT INTO %s
		(id, name, brand, price_regular, price_discounted, rating,
		 review_count, image_url, detail_url, scraped_at)
		VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			price_regular = excluded.price_regular,
			price_discounted = excluded.price_discounted,
			rating = excluded.rating,
			review_count = excluded.review_count,
			image_url = excluded.image_url,
			detail_url = excluded.detail_url,
			scraped_at = excluded.scraped_at`, ss.table, placeholders)
}

// Count returns the number of persisted rows.
func (ss *SQLSink) Count() (int, error) {
	var count int
	err := ss.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", ss.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// Validate ensures the table holds at least one row.
func (ss *SQLSink) Validate() error {
	count, err := ss.Count()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("table %s is empty", ss.table)
	}
	return nil
}

// Close releases the database handle.
func (ss *SQLSink) Close() error {
	return ss.db.Close()
}
