package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(user, pass, host, port, name))
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// DSN builds the driver data source name.  parseTime maps DATETIME onto
// time.Time and loc=UTC keeps lock expiries comparable across instances.
func DSN(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)
}

// seatsTable is the authoritative seat table.  (flight_id, seat_id) is the
// identity; seat numbers are unique within a flight.  The expiry index
// serves the sweeper's scan for lapsed locks.
const seatsTable = `CREATE TABLE IF NOT EXISTS seats (
	flight_id   VARCHAR(16) NOT NULL,
	seat_id     VARCHAR(8)  NOT NULL,
	seat_number VARCHAR(8)  NOT NULL,
	seat_class  ENUM('FIRST','BUSINESS','ECONOMY') NOT NULL DEFAULT 'ECONOMY',
	seat_status ENUM('AVAILABLE','LOCKED','RESERVED','OCCUPIED') NOT NULL DEFAULT 'AVAILABLE',
	locked_by   VARCHAR(80) NULL,
	lock_expiry DATETIME(3) NULL,
	booking_id  VARCHAR(32) NULL,
	last_locked_by VARCHAR(80) NULL,
	version     BIGINT UNSIGNED NOT NULL DEFAULT 0,
	created_at  DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	updated_at  DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	PRIMARY KEY (flight_id, seat_id),
	UNIQUE KEY uq_seats_number (flight_id, seat_number),
	KEY idx_seats_booking (flight_id, booking_id),
	KEY idx_seats_expiry (seat_status, lock_expiry)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Migrate creates the schema when it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, seatsTable); err != nil {
		return fmt.Errorf("create seats table: %w", err)
	}
	return nil
}
