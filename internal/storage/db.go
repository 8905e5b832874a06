/**
 * Record store connection for the OCR pipeline
 *
 * gorm over either PostgreSQL (lib/pq connections) or SQLite. Job and StoredFile
 * rows live here; each status transition is one short transaction.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the record store. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	switch driver {
	case "postgres":
		sqlDB, err := openPostgres(dsn)
		if err != nil {
			return nil, err
		}
		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to initialize gorm: %w", err)
		}
		return db, nil

	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// a single connection keeps in-memory databases shared and serializes writers
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	return nil, fmt.Errorf("unsupported database driver: %s", driver)
}

func openPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the files and jobs tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&fileRecord{}, &jobRecord{}); err != nil {
		return fmt.Errorf("failed to migrate record store: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation recognizes duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// sanitizeJSONForPostgres removes escapes PostgreSQL text columns reject.
// OCR output can contain NUL and other control characters: \u0000 is dropped
// and \u0001..\u001f become a space. Escaped backslashes are copied as is, so
// literal text such as `\u0012` survives.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	out := make([]byte, 0, len(jsonBytes))
	for i := 0; i < len(jsonBytes); i++ {
		b := jsonBytes[i]
		if b != '\\' || i+1 >= len(jsonBytes) {
			out = append(out, b)
			continue
		}
		if jsonBytes[i+1] == 'u' && i+5 < len(jsonBytes) && isControlEscape(jsonBytes[i+2:i+6]) {
			if string(jsonBytes[i+2:i+6]) != "0000" {
				out = append(out, ' ')
			}
			i += 5
			continue
		}
		// any other escape, including \\, is kept whole
		out = append(out, b, jsonBytes[i+1])
		i++
	}
	return out
}

// isControlEscape reports whether hex is 0000..001f.
func isControlEscape(hex []byte) bool {
	if hex[0] != '0' || hex[1] != '0' || (hex[2] != '0' && hex[2] != '1') {
		return false
	}
	c := hex[3]
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
