// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/tarancss/rentguard/lib/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS properties (
	id                  TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL,
	address             TEXT NOT NULL,
	monthly_rent        NUMERIC NOT NULL,
	currency            TEXT NOT NULL,
	landlord_public_key TEXT NOT NULL,
	features            TEXT[] NOT NULL DEFAULT '{}',
	images              TEXT[] NOT NULL DEFAULT '{}',
	is_available        BOOLEAN NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS rentals (
	id                  TEXT PRIMARY KEY,
	property_id         TEXT NOT NULL,
	tenant_public_key   TEXT NOT NULL,
	landlord_public_key TEXT NOT NULL,
	monthly_rent        NUMERIC NOT NULL,
	currency            TEXT NOT NULL,
	start_date          TIMESTAMPTZ NOT NULL,
	end_date            TIMESTAMPTZ NOT NULL,
	deposit             NUMERIC NOT NULL DEFAULT 0,
	terms               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	payments            JSONB NOT NULL DEFAULT '[]',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);`

const (
	propertyCols = `id, title, description, address, monthly_rent, currency, landlord_public_key, features, images,
	is_available, created_at, updated_at`
	rentalCols = `id, property_id, tenant_public_key, landlord_public_key, monthly_rent, currency, start_date, end_date,
	deposit, terms, status, payments, created_at, updated_at`
)

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// New returns a postgres client connection to the specified database in 'connection' and creates the tables if
// they do not exist.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("cannot create tables: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

func scanProperty(s scanner) (pr store.Property, err error) {
	err = s.Scan(&pr.ID, &pr.Title, &pr.Description, &pr.Address, &pr.MonthlyRent, &pr.Currency, &pr.LandlordPublicKey,
		pq.Array(&pr.Features), pq.Array(&pr.Images), &pr.IsAvailable, &pr.CreatedAt, &pr.UpdatedAt)
	pr.CreatedAt, pr.UpdatedAt = pr.CreatedAt.UTC(), pr.UpdatedAt.UTC()

	return pr.Clone(), err
}

func scanRental(s scanner) (r store.Rental, err error) {
	var payments []byte

	if err = s.Scan(&r.ID, &r.PropertyID, &r.TenantPublicKey, &r.LandlordPublicKey, &r.MonthlyRent, &r.Currency,
		&r.StartDate, &r.EndDate, &r.Deposit, &r.Terms, &r.Status, &payments, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}

	r.StartDate, r.EndDate = r.StartDate.UTC(), r.EndDate.UTC()
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	r.Payments = []store.Payment{}

	if err = json.Unmarshal(payments, &r.Payments); err != nil {
		return r, fmt.Errorf("cannot decode payments of rental %s: %w", r.ID, err)
	}

	return r, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}

	return fmt.Errorf("cannot read %s %s: %w", kind, id, err)
}

// CreateProperty inserts a new property.
func (p *Postgres) CreateProperty(ctx context.Context, pr store.Property) (store.Property, error) {
	pr.Init(store.Now())

	_, err := p.db.ExecContext(ctx, `INSERT INTO properties (`+propertyCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pr.ID, pr.Title, pr.Description, pr.Address, pr.MonthlyRent, pr.Currency, pr.LandlordPublicKey,
		pq.Array(pr.Features), pq.Array(pr.Images), pr.IsAvailable, pr.CreatedAt, pr.UpdatedAt)
	if err != nil {
		return store.Property{}, fmt.Errorf("could not insert property in db: %w", err)
	}

	return pr, nil
}

// GetProperty returns the property with the given id.
func (p *Postgres) GetProperty(ctx context.Context, id string) (store.Property, error) {
	pr, err := scanProperty(p.db.QueryRowContext(ctx, `SELECT `+propertyCols+` FROM properties WHERE id = $1`, id))
	if err != nil {
		return store.Property{}, notFound(err, "property", id)
	}

	return pr, nil
}

// UpdateProperty locks the row, applies fn and saves it in a single transaction.
func (p *Postgres) UpdateProperty(ctx context.Context, id string, fn func(*store.Property) error) (
	pr store.Property, err error,
) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return pr, fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if pr, err = scanProperty(tx.QueryRowContext(ctx,
		`SELECT `+propertyCols+` FROM properties WHERE id = $1 FOR UPDATE`, id)); err != nil {
		return store.Property{}, notFound(err, "property", id)
	}

	if err = fn(&pr); err != nil {
		return store.Property{}, err
	}

	pr.ID = id
	pr.UpdatedAt = store.Now()

	if _, err = tx.ExecContext(ctx, `UPDATE properties SET title = $2, description = $3, address = $4,
		monthly_rent = $5, currency = $6, landlord_public_key = $7, features = $8, images = $9, is_available = $10,
		updated_at = $11 WHERE id = $1`,
		id, pr.Title, pr.Description, pr.Address, pr.MonthlyRent, pr.Currency, pr.LandlordPublicKey,
		pq.Array(pr.Features), pq.Array(pr.Images), pr.IsAvailable, pr.UpdatedAt); err != nil {
		return store.Property{}, fmt.Errorf("could not update property in db: %w", err)
	}

	return pr, tx.Commit()
}

// DeleteProperty deletes the property row.
func (p *Postgres) DeleteProperty(ctx context.Context, id string) error {
	return p.delete(ctx, "properties", "property", id)
}

func (p *Postgres) delete(ctx context.Context, table, kind, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("could not delete %s: %w", kind, err)
	}

	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}

	return nil
}

// where builds a WHERE clause of the conditions joined by AND.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`) //nolint:gochecknoglobals // read only

// ListProperties returns the properties matching the filter in creation order.
func (p *Postgres) ListProperties(ctx context.Context, f store.PropertyFilter) ([]store.Property, error) {
	var w where
	if f.Available != nil {
		w.add("is_available = ?", *f.Available)
	}

	if f.Landlord != "" {
		w.add("landlord_public_key = ?", f.Landlord)
	}

	if f.Search != "" {
		w.add("(title ILIKE ? OR description ILIKE ? OR address ILIKE ?)", "%"+likeEscaper.Replace(f.Search)+"%")
	}

	rows, err := p.db.QueryContext(ctx, `SELECT `+propertyCols+` FROM properties`+w.String()+
		` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list properties: %w", err)
	}
	defer rows.Close()

	ps := []store.Property{}

	for rows.Next() {
		pr, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("cannot decode property: %w", err)
		}

		ps = append(ps, pr)
	}

	return ps, rows.Err()
}

// CreateRental inserts a new rental.
func (p *Postgres) CreateRental(ctx context.Context, r store.Rental) (store.Rental, error) {
	r.Init(store.Now())

	payments, err := json.Marshal(r.Payments)
	if err != nil {
		return store.Rental{}, fmt.Errorf("cannot encode payments: %w", err)
	}

	if _, err = p.db.ExecContext(ctx, `INSERT INTO rentals (`+rentalCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.PropertyID, r.TenantPublicKey, r.LandlordPublicKey, r.MonthlyRent, r.Currency, r.StartDate, r.EndDate,
		r.Deposit, r.Terms, r.Status, string(payments), r.CreatedAt, r.UpdatedAt); err != nil {
		return store.Rental{}, fmt.Errorf("could not insert rental in db: %w", err)
	}

	return r, nil
}

// GetRental returns the rental with the given id.
func (p *Postgres) GetRental(ctx context.Context, id string) (store.Rental, error) {
	r, err := scanRental(p.db.QueryRowContext(ctx, `SELECT `+rentalCols+` FROM rentals WHERE id = $1`, id))
	if err != nil {
		return store.Rental{}, notFound(err, "rental", id)
	}

	return r, nil
}

// UpdateRental locks the row, applies fn and saves every column but the payments.
func (p *Postgres) UpdateRental(ctx context.Context, id string, fn func(*store.Rental) error) (
	r store.Rental, err error,
) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return r, fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if r, err = scanRental(tx.QueryRowContext(ctx,
		`SELECT `+rentalCols+` FROM rentals WHERE id = $1 FOR UPDATE`, id)); err != nil {
		return store.Rental{}, notFound(err, "rental", id)
	}

	payments := r.Clone().Payments

	if err = fn(&r); err != nil {
		return store.Rental{}, err
	}

	r.ID = id
	r.Payments = payments
	r.UpdatedAt = store.Now()

	if _, err = tx.ExecContext(ctx, `UPDATE rentals SET property_id = $2, tenant_public_key = $3,
		landlord_public_key = $4, monthly_rent = $5, currency = $6, start_date = $7, end_date = $8, deposit = $9,
		terms = $10, status = $11, updated_at = $12 WHERE id = $1`,
		id, r.PropertyID, r.TenantPublicKey, r.LandlordPublicKey, r.MonthlyRent, r.Currency, r.StartDate, r.EndDate,
		r.Deposit, r.Terms, r.Status, r.UpdatedAt); err != nil {
		return store.Rental{}, fmt.Errorf("could not update rental in db: %w", err)
	}

	return r, tx.Commit()
}

// DeleteRental deletes the rental row.
func (p *Postgres) DeleteRental(ctx context.Context, id string) error {
	return p.delete(ctx, "rentals", "rental", id)
}

// ListRentals returns the rentals matching the filter in creation order.
func (p *Postgres) ListRentals(ctx context.Context, f store.RentalFilter) ([]store.Rental, error) {
	var w where
	if f.Tenant != "" {
		w.add("tenant_public_key = ?", f.Tenant)
	}

	if f.Landlord != "" {
		w.add("landlord_public_key = ?", f.Landlord)
	}

	if f.Status != "" {
		w.add("status = ?", f.Status)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT `+rentalCols+` FROM rentals`+w.String()+` ORDER BY created_at, id`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list rentals: %w", err)
	}
	defer rows.Close()

	rs := []store.Rental{}

	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("cannot decode rental: %w", err)
		}

		rs = append(rs, r)
	}

	return rs, rows.Err()
}

// AddPayment appends the payment to the rental payments array.
func (p *Postgres) AddPayment(ctx context.Context, rentalID string, pay store.Payment) (store.Payment, error) {
	now := store.Now()
	pay.Init(now)

	b, err := json.Marshal([]store.Payment{pay})
	if err != nil {
		return store.Payment{}, fmt.Errorf("cannot encode payment: %w", err)
	}

	res, err := p.db.ExecContext(ctx, `UPDATE rentals SET payments = payments || $2::jsonb, updated_at = $3
		WHERE id = $1`, rentalID, string(b), now)
	if err != nil {
		return store.Payment{}, fmt.Errorf("could not add payment in db: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return store.Payment{}, fmt.Errorf("rental %s: %w", rentalID, store.ErrNotFound)
	}

	return pay, nil
}
