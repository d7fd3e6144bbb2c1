package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"client_service/internal/config"
	"client_service/internal/models"
	"client_service/internal/storage"
	"client_service/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// runMigrations applies the embedded goose migrations through a short-lived
// database/sql connection; goose does not speak pgxpool.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email, name string, passHash []byte) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, name, pass_hash)
		VALUES ($1, $2, $3)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, email, name, string(passHash)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, email, name, pass_hash
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, email, name, pass_hash
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var (
		u        models.User
		passHash string
	)

	err := row.Scan(&u.ID, &u.Email, &u.Name, &passHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	u.PassHash = []byte(passHash)

	return u, nil
}

func (r *PostgresRepo) UpdateUserName(ctx context.Context, id int64, name string) error {
	const op = "storage.postgres.UpdateUserName"

	tag, err := r.pool.Exec(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// DeleteUser removes the user; owned clients go with it via the FK cascade.
func (r *PostgresRepo) DeleteUser(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteUser"

	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) SaveClient(ctx context.Context, c models.Client) (int64, error) {
	const op = "storage.postgres.SaveClient"

	query := `
		INSERT INTO clients (name, email, phone, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, c.Name, c.Email, c.Phone, c.OwnerID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}

	return id, nil
}

func (r *PostgresRepo) ClientByID(ctx context.Context, id int64) (models.Client, error) {
	query := `
		SELECT id, name, email, phone, owner_id, created_at, updated_at
		FROM clients
		WHERE id = $1;
	`

	var c models.Client

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Client{}, storage.ErrClientNotFound
		}

		return models.Client{}, err
	}

	return c, nil
}

func (r *PostgresRepo) UpdateClient(ctx context.Context, c models.Client) error {
	const op = "storage.postgres.UpdateClient"

	query := `
		UPDATE clients
		SET name = $1, email = $2, phone = $3, updated_at = now()
		WHERE id = $4;
	`

	tag, err := r.pool.Exec(ctx, query, c.Name, c.Email, c.Phone, c.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrClientNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteClient(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteClient"

	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrClientNotFound
	}

	return nil
}

func (r *PostgresRepo) ExistsClientByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE email = $1)`, email,
	).Scan(&exists)

	return exists, err
}

func (r *PostgresRepo) ExistsClientByPhone(ctx context.Context, phone string) (bool, error) {
	var exists bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE phone = $1)`, phone,
	).Scan(&exists)

	return exists, err
}

// ClientsByOwner returns one page of the owner's clients plus the total
// count of matches. A blank search returns the unfiltered page; otherwise
// name and email match case-insensitively and phone by substring.
func (r *PostgresRepo) ClientsByOwner(
	ctx context.Context,
	ownerID int64,
	offset, limit int,
	search string,
) ([]models.Client, int64, error) {
	const op = "storage.postgres.ClientsByOwner"

	filter := `
		owner_id = $1
		AND (
			$2 = ''
			OR name  ILIKE '%' || $2 || '%'
			OR email ILIKE '%' || $2 || '%'
			OR phone LIKE  '%' || $2 || '%'
		)
	`

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM clients WHERE `+filter, ownerID, search,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to count clients: %w", op, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, phone, owner_id, created_at, updated_at
		FROM clients
		WHERE `+filter+`
		ORDER BY id
		OFFSET $3 LIMIT $4;
	`, ownerID, search, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var clients []models.Client

	for rows.Next() {
		var c models.Client

		err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}

		clients = append(clients, c)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return clients, total, nil
}

// EachClientByOwner streams all of the owner's clients through fn, one row
// at a time. The cursor is released on every exit path, including an error
// returned by fn.
func (r *PostgresRepo) EachClientByOwner(
	ctx context.Context,
	ownerID int64,
	fn func(models.Client) error,
) error {
	const op = "storage.postgres.EachClientByOwner"

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, phone, owner_id, created_at, updated_at
		FROM clients
		WHERE owner_id = $1
		ORDER BY id;
	`, ownerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Client

		err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := fn(c); err != nil {
			return err
		}
	}
	if rows.Err() != nil {
		return fmt.Errorf("%s: %w", op, rows.Err())
	}

	return nil
}

// ImportClients persists the whole batch inside one transaction: either
// every row lands or none do.
func (r *PostgresRepo) ImportClients(ctx context.Context, clients []models.Client) error {
	const op = "storage.postgres.ImportClients"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}

	for _, c := range clients {
		batch.Queue(`
			INSERT INTO clients (name, email, phone, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.Name, c.Email, c.Phone, c.OwnerID, c.CreatedAt, c.UpdatedAt)
	}

	results := tx.SendBatch(ctx, batch)

	for range clients {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()

			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", storage.ErrConstraintViolation, pgErr.ConstraintName)
			}

			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// mapUniqueViolation translates a 23505 on one of the client unique indexes
// into the matching sentinel.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case "clients_email_key":
		return storage.ErrEmailExists
	case "clients_phone_key":
		return storage.ErrPhoneExists
	default:
		return fmt.Errorf("%w: %s", storage.ErrConstraintViolation, pgErr.ConstraintName)
	}
}

// dsn assembles the database connection string.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
