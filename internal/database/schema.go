package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
// car_seats enforces that a seat is either fully free or fully booked.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS services (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		service_code VARCHAR(32)  NOT NULL,
		service_name VARCHAR(128) NOT NULL,
		service_date DATE         NOT NULL,
		created_at   DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_services_code_date (service_code, service_date),
		KEY idx_services_date (service_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS service_stops (
		service_id       BIGINT UNSIGNED NOT NULL,
		seq              INT             NOT NULL,
		station          VARCHAR(128)    NOT NULL,
		arrival_time     VARCHAR(16)     NULL,
		departure_time   VARCHAR(16)     NULL,
		halt_minutes     INT             NOT NULL DEFAULT 0,
		duration_minutes INT             NOT NULL DEFAULT 0,
		PRIMARY KEY (service_id, seq),
		CONSTRAINT fk_stops_service FOREIGN KEY (service_id) REFERENCES services (id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS cars (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		service_id BIGINT UNSIGNED NOT NULL,
		car_id     VARCHAR(16)     NOT NULL,
		seat_class VARCHAR(16)     NOT NULL,
		position   INT             NOT NULL,
		free_count INT             NOT NULL,
		UNIQUE KEY uq_cars_service_car (service_id, car_id),
		CONSTRAINT fk_cars_service FOREIGN KEY (service_id) REFERENCES services (id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS car_seats (
		car_pk      BIGINT UNSIGNED NOT NULL,
		seat_number INT             NOT NULL,
		booked_by   VARCHAR(64)     NULL,
		booked_at   DATETIME(6)     NULL,
		PRIMARY KEY (car_pk, seat_number),
		CONSTRAINT fk_seats_car FOREIGN KEY (car_pk) REFERENCES cars (id) ON DELETE RESTRICT,
		CONSTRAINT chk_seat_state CHECK ((booked_by IS NULL) = (booked_at IS NULL))
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id           CHAR(36)     NOT NULL PRIMARY KEY,
		purchaser_id VARCHAR(64)  NOT NULL,
		service_code VARCHAR(32)  NOT NULL,
		service_name VARCHAR(128) NOT NULL,
		service_date DATE         NOT NULL,
		car_id       VARCHAR(16)  NOT NULL,
		seat_class   VARCHAR(16)  NOT NULL,
		seats        VARCHAR(64)  NOT NULL,
		from_station VARCHAR(128) NOT NULL,
		to_station   VARCHAR(128) NOT NULL,
		price_paid   BIGINT       NOT NULL,
		currency     CHAR(3)      NOT NULL,
		payment_ref  VARCHAR(64)  NULL,
		purchased_at DATETIME(6)  NOT NULL,
		KEY idx_tickets_purchaser (purchaser_id, purchased_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		name          VARCHAR(128) NOT NULL DEFAULT '',
		email         VARCHAR(190) NOT NULL,
		phone         VARCHAR(32)  NOT NULL DEFAULT '',
		address       VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(100) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'CUSTOMER',
		created_at    DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the MySQL store needs.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
