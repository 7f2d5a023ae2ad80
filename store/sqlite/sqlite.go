/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements invoice.RecordStore / invoice.TxStore for the recurrence engine,
  plus the CRUD operations the HTTP API needs for invoices, clients and the
  generation run history.

KEY TABLES:
  invoices:        Templates, generated occurrences and ordinary invoices
  clients:         Billed parties
  business_info:   One business profile per owner
  generation_runs: One row per recurrence driver invocation

INDEXES:
  - idx_invoices_unique_number: (owner, client_ref, invoice_number) is unique.
    A second insert of the same generated occurrence fails with
    invoice.ErrDuplicateInvoiceNumber instead of creating a near-duplicate.
  - idx_invoices_templates: template scan (hot path of every run)
  - idx_invoices_lineage: latest-occurrence lookup per template

DATES:
  Calendar dates are stored as YYYY-MM-DD and timestamps as fixed-width UTC
  strings, so lexicographic ORDER BY matches chronological order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection, which
  also keeps ":memory:" databases consistent across calls.

USAGE:
  store, err := sqlite.New("./data/invoicepro.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - invoice/store.go: Interface definitions
  - invoice/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/invoicepro/invoice"
)

// timestampLayout is RFC3339 with fixed-width nanoseconds.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now stamps CreatedAt/UpdatedAt when the caller leaves them zero.
	Now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database. Connection and schema failures
// wrap invoice.ErrStoreUnavailable.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", invoice.ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", invoice.ErrStoreUnavailable, dbPath, err)
	}

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to migrate database: %w", invoice.ErrStoreUnavailable, err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		client_ref TEXT NOT NULL,
		invoice_number TEXT NOT NULL DEFAULT '',
		occurrence_date TEXT NOT NULL,
		due_date TEXT,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		recurring_frequency TEXT,
		recurring_end_date TEXT,
		source_template_id TEXT,
		items_json TEXT,
		notes TEXT,
		status TEXT,
		currency TEXT,
		tax_rate TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		tax TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_unique_number
		ON invoices(owner, client_ref, invoice_number)
		WHERE invoice_number <> '';

	CREATE INDEX IF NOT EXISTS idx_invoices_templates
		ON invoices(is_recurring, recurring_end_date);

	CREATE INDEX IF NOT EXISTS idx_invoices_lineage
		ON invoices(owner, client_ref, is_recurring, occurrence_date DESC, created_at DESC);

	CREATE INDEX IF NOT EXISTS idx_invoices_owner_date
		ON invoices(owner, occurrence_date DESC);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		address TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_owner
		ON clients(owner, name);

	CREATE TABLE IF NOT EXISTS business_info (
		owner TEXT PRIMARY KEY,
		name TEXT,
		address TEXT,
		email TEXT,
		phone TEXT,
		website TEXT,
		default_currency TEXT,
		tax_rate TEXT NOT NULL DEFAULT '0',
		brand_color TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_runs (
		id TEXT PRIMARY KEY,
		run_trigger TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		created_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		generated_json TEXT,
		errors_json TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_generation_runs_status
		ON generation_runs(status, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// RECORD STORE (invoice.RecordStore interface)
// =============================================================================

const invoiceColumns = `id, owner, client_ref, invoice_number, occurrence_date, due_date,
	is_recurring, recurring_frequency, recurring_end_date, source_template_id,
	items_json, notes, status, currency, tax_rate, subtotal, tax, total,
	created_at, updated_at`

// Insert persists a new invoice record.
func (s *Store) Insert(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insert(ctx, s.db, inv)
}

func (s *Store) insert(ctx context.Context, q querier, inv invoice.Invoice) (invoice.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := s.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("failed to encode line items: %w", err)
	}

	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, query,
		inv.ID,
		inv.Owner,
		inv.ClientRef,
		inv.InvoiceNumber,
		inv.OccurrenceDate.String(),
		nullDate(inv.DueDate),
		inv.IsRecurring,
		nullString(string(inv.RecurringFrequency)),
		nullDate(inv.RecurringEndDate),
		nullString(inv.SourceTemplateID),
		string(itemsJSON),
		inv.Notes,
		string(inv.Status),
		inv.Currency,
		inv.TaxRate.String(),
		inv.Subtotal.String(),
		inv.Tax.String(),
		inv.Total.String(),
		formatTimestamp(inv.CreatedAt),
		formatTimestamp(inv.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return invoice.Invoice{}, fmt.Errorf("%w: %s", invoice.ErrDuplicateInvoiceNumber, inv.InvoiceNumber)
		}
		return invoice.Invoice{}, fmt.Errorf("failed to insert invoice: %w", err)
	}

	return inv, nil
}

// Find returns all invoices matching the filter.
func (s *Store) Find(ctx context.Context, filter invoice.Filter) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.find(ctx, s.db, filter, nil, 0)
}

// FindOne returns the first invoice matching filter under sort, or nil.
func (s *Store) FindOne(ctx context.Context, filter invoice.Filter, sort invoice.Sort) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findOne(ctx, s.db, filter, sort)
}

func (s *Store) findOne(ctx context.Context, q querier, filter invoice.Filter, sort invoice.Sort) (*invoice.Invoice, error) {
	found, err := s.find(ctx, q, filter, sort, 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *Store) find(ctx context.Context, q querier, filter invoice.Filter, sort invoice.Sort, limit int) ([]invoice.Invoice, error) {
	where, args := whereClause(filter)
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where + orderClause(sort)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return queryInvoices(ctx, q, query, args...)
}

func whereClause(f invoice.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}

	if f.ID != "" {
		add("id = ?", f.ID)
	}
	if f.Owner != "" {
		add("owner = ?", f.Owner)
	}
	if f.ClientRef != "" {
		add("client_ref = ?", f.ClientRef)
	}
	if f.IsRecurring != nil {
		add("is_recurring = ?", *f.IsRecurring)
	}
	if f.HasRecurringEndDate != nil {
		if *f.HasRecurringEndDate {
			add("recurring_end_date IS NOT NULL AND recurring_end_date <> ''")
		} else {
			add("(recurring_end_date IS NULL OR recurring_end_date = '')")
		}
	}
	if f.InvoiceNumber != "" {
		add("invoice_number = ?", f.InvoiceNumber)
	}
	if f.InvoiceNumberPrefix != "" {
		// substr is case-sensitive and needs no escaping, unlike LIKE.
		add("substr(invoice_number, 1, ?) = ?", utf8.RuneCountInString(f.InvoiceNumberPrefix), f.InvoiceNumberPrefix)
	}
	if f.DatedSuffix {
		// date() returns NULL or a normalized value for anything that is not
		// a valid YYYY-MM-DD, so the round trip rejects it.
		n := utf8.RuneCountInString(f.InvoiceNumberPrefix)
		add("length(invoice_number) = ? AND date(substr(invoice_number, ?)) = substr(invoice_number, ?)",
			n+len(invoice.DateLayout), n+1, n+1)
	}
	if f.SourceTemplateID != "" {
		add("(source_template_id IS NULL OR source_template_id = '' OR source_template_id = ?)", f.SourceTemplateID)
	}
	if f.OccurrenceFrom != nil {
		add("occurrence_date >= ?", f.OccurrenceFrom.String())
	}
	if f.OccurrenceTo != nil {
		add("occurrence_date <= ?", f.OccurrenceTo.String())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(sort invoice.Sort) string {
	var keys []string
	for _, k := range sort {
		var col string
		switch k.Field {
		case invoice.SortCreatedAt:
			col = "created_at"
		case invoice.SortOccurrenceDate:
			col = "occurrence_date"
		default:
			continue
		}
		if k.Descending {
			col += " DESC"
		} else {
			col += " ASC"
		}
		keys = append(keys, col)
	}
	// Ties resolve to insertion order, matching the memory store.
	keys = append(keys, "rowid ASC")
	return " ORDER BY " + strings.Join(keys, ", ")
}

func queryInvoices(ctx context.Context, q querier, query string, args ...any) ([]invoice.Invoice, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (invoice.Invoice, error) {
	var (
		inv              invoice.Invoice
		occurrenceDate   string
		dueDate          sql.NullString
		frequency        sql.NullString
		endDate          sql.NullString
		sourceTemplateID sql.NullString
		itemsJSON        sql.NullString
		notes            sql.NullString
		status           sql.NullString
		currency         sql.NullString
		taxRate          string
		subtotal         string
		tax              string
		total            string
		createdAt        string
		updatedAt        string
	)

	err := row.Scan(
		&inv.ID, &inv.Owner, &inv.ClientRef, &inv.InvoiceNumber, &occurrenceDate, &dueDate,
		&inv.IsRecurring, &frequency, &endDate, &sourceTemplateID,
		&itemsJSON, &notes, &status, &currency, &taxRate, &subtotal, &tax, &total,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return inv, fmt.Errorf("failed to scan invoice: %w", err)
	}

	if inv.OccurrenceDate, err = invoice.ParseDate(occurrenceDate); err != nil {
		return inv, fmt.Errorf("invoice %s: %w", inv.ID, err)
	}
	if inv.DueDate, err = parseNullDate(dueDate); err != nil {
		return inv, fmt.Errorf("invoice %s due date: %w", inv.ID, err)
	}
	if inv.RecurringEndDate, err = parseNullDate(endDate); err != nil {
		return inv, fmt.Errorf("invoice %s recurring end date: %w", inv.ID, err)
	}
	inv.RecurringFrequency = invoice.Frequency(frequency.String)
	inv.SourceTemplateID = sourceTemplateID.String
	inv.Notes = notes.String
	inv.Status = invoice.Status(status.String)
	inv.Currency = currency.String
	inv.TaxRate = parseDecimal(taxRate)
	inv.Subtotal = parseDecimal(subtotal)
	inv.Tax = parseDecimal(tax)
	inv.Total = parseDecimal(total)
	inv.CreatedAt = parseTimestamp(createdAt)
	inv.UpdatedAt = parseTimestamp(updatedAt)

	if itemsJSON.Valid && itemsJSON.String != "" && itemsJSON.String != "null" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &inv.Items); err != nil {
			return inv, fmt.Errorf("invoice %s line items: %w", inv.ID, err)
		}
	}

	return inv, nil
}

// =============================================================================
// TRANSACTIONAL STORE (invoice.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store invoice.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every operation on the open transaction. The parent lock is
// already held by WithTx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Find(ctx context.Context, filter invoice.Filter) ([]invoice.Invoice, error) {
	return ts.parent.find(ctx, ts.tx, filter, nil, 0)
}

func (ts *txStore) FindOne(ctx context.Context, filter invoice.Filter, sort invoice.Sort) (*invoice.Invoice, error) {
	return ts.parent.findOne(ctx, ts.tx, filter, sort)
}

func (ts *txStore) Insert(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	return ts.parent.insert(ctx, ts.tx, inv)
}

// =============================================================================
// INVOICE CRUD
// =============================================================================

// GetInvoice retrieves an invoice by ID, scoped to its owner.
func (s *Store) GetInvoice(ctx context.Context, owner, id string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, err := s.findOne(ctx, s.db, invoice.Filter{ID: id, Owner: owner}, nil)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoice.ErrInvoiceNotFound
	}
	return inv, nil
}

// ListInvoices returns an owner's invoices matching filter, newest effective
// date first. The owner always overrides filter.Owner.
func (s *Store) ListInvoices(ctx context.Context, owner string, filter invoice.Filter) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.Owner = owner
	sort := invoice.Sort{
		{Field: invoice.SortOccurrenceDate, Descending: true},
		{Field: invoice.SortCreatedAt, Descending: true},
	}
	return s.find(ctx, s.db, filter, sort, 0)
}

// UpdateInvoice replaces the mutable fields of an existing invoice.
func (s *Store) UpdateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("failed to encode line items: %w", err)
	}
	inv.UpdatedAt = s.Now().UTC()

	query := `
		UPDATE invoices SET
			client_ref = ?, invoice_number = ?, occurrence_date = ?, due_date = ?,
			is_recurring = ?, recurring_frequency = ?, recurring_end_date = ?,
			items_json = ?, notes = ?, status = ?, currency = ?,
			tax_rate = ?, subtotal = ?, tax = ?, total = ?, updated_at = ?
		WHERE id = ? AND owner = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		inv.ClientRef, inv.InvoiceNumber, inv.OccurrenceDate.String(), nullDate(inv.DueDate),
		inv.IsRecurring, nullString(string(inv.RecurringFrequency)), nullDate(inv.RecurringEndDate),
		string(itemsJSON), inv.Notes, string(inv.Status), inv.Currency,
		inv.TaxRate.String(), inv.Subtotal.String(), inv.Tax.String(), inv.Total.String(),
		formatTimestamp(inv.UpdatedAt),
		inv.ID, inv.Owner,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return invoice.Invoice{}, fmt.Errorf("%w: %s", invoice.ErrDuplicateInvoiceNumber, inv.InvoiceNumber)
		}
		return invoice.Invoice{}, fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invoice.Invoice{}, invoice.ErrInvoiceNotFound
	}

	updated, err := s.findOne(ctx, s.db, invoice.Filter{ID: inv.ID, Owner: inv.Owner}, nil)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if updated == nil {
		return invoice.Invoice{}, invoice.ErrInvoiceNotFound
	}
	return *updated, nil
}

// DeleteInvoice removes an invoice.
func (s *Store) DeleteInvoice(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invoice.ErrInvoiceNotFound
	}
	return nil
}

// =============================================================================
// CLIENT STORE
// =============================================================================

// SaveClient inserts or updates a client.
func (s *Store) SaveClient(ctx context.Context, c invoice.Client) (invoice.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Now().UTC()
	}

	query := `
		INSERT INTO clients (id, owner, name, email, phone, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address
		WHERE clients.owner = excluded.owner
	`
	res, err := s.db.ExecContext(ctx, query,
		c.ID, c.Owner, c.Name, c.Email, c.Phone, c.Address, formatTimestamp(c.CreatedAt),
	)
	if err != nil {
		return invoice.Client{}, fmt.Errorf("failed to save client: %w", err)
	}
	// The upsert is a no-op when the ID belongs to another owner.
	if n, _ := res.RowsAffected(); n == 0 {
		return invoice.Client{}, invoice.ErrClientNotFound
	}
	return c, nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, owner, id string) (*invoice.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner, name, email, phone, address, created_at FROM clients WHERE id = ? AND owner = ?",
		id, owner,
	)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoice.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClients returns an owner's clients ordered by name.
func (s *Store) ListClients(ctx context.Context, owner string) ([]invoice.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner, name, email, phone, address, created_at FROM clients WHERE owner = ? ORDER BY name",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []invoice.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client.
func (s *Store) DeleteClient(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invoice.ErrClientNotFound
	}
	return nil
}

func scanClient(row scanner) (invoice.Client, error) {
	var (
		c                     invoice.Client
		email, phone, address sql.NullString
		createdAt             string
	)
	if err := row.Scan(&c.ID, &c.Owner, &c.Name, &email, &phone, &address, &createdAt); err != nil {
		return c, err
	}
	c.Email = email.String
	c.Phone = phone.String
	c.Address = address.String
	c.CreatedAt = parseTimestamp(createdAt)
	return c, nil
}

// =============================================================================
// BUSINESS INFO
// =============================================================================

// GetBusinessInfo returns the owner's business profile. An owner who never
// saved one gets an empty profile.
func (s *Store) GetBusinessInfo(ctx context.Context, owner string) (invoice.BusinessInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := invoice.BusinessInfo{Owner: owner}
	var (
		name, address, email, phone, website sql.NullString
		currency, brandColor                 sql.NullString
		taxRate, updatedAt                   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, address, email, phone, website, default_currency, tax_rate, brand_color, updated_at
		FROM business_info WHERE owner = ?
	`, owner).Scan(&name, &address, &email, &phone, &website, &currency, &taxRate, &brandColor, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return info, nil
	}
	if err != nil {
		return invoice.BusinessInfo{}, fmt.Errorf("failed to get business info: %w", err)
	}

	info.Name = name.String
	info.Address = address.String
	info.Email = email.String
	info.Phone = phone.String
	info.Website = website.String
	info.DefaultCurrency = currency.String
	info.TaxRate = parseDecimal(taxRate)
	info.BrandColor = brandColor.String
	info.UpdatedAt = parseTimestamp(updatedAt)
	return info, nil
}

// SaveBusinessInfo creates or replaces the owner's business profile.
func (s *Store) SaveBusinessInfo(ctx context.Context, info invoice.BusinessInfo) (invoice.BusinessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info.UpdatedAt = s.Now().UTC()

	query := `
		INSERT INTO business_info (owner, name, address, email, phone, website,
			default_currency, tax_rate, brand_color, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			email = excluded.email,
			phone = excluded.phone,
			website = excluded.website,
			default_currency = excluded.default_currency,
			tax_rate = excluded.tax_rate,
			brand_color = excluded.brand_color,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		info.Owner, nullString(info.Name), nullString(info.Address), nullString(info.Email),
		nullString(info.Phone), nullString(info.Website), nullString(info.DefaultCurrency),
		info.TaxRate.String(), nullString(info.BrandColor), formatTimestamp(info.UpdatedAt),
	)
	if err != nil {
		return invoice.BusinessInfo{}, fmt.Errorf("failed to save business info: %w", err)
	}
	return info, nil
}

// =============================================================================
// GENERATION RUNS
// =============================================================================

// SaveGenerationRun inserts or updates a generation run.
func (s *Store) SaveGenerationRun(ctx context.Context, r invoice.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	generatedJSON, err := json.Marshal(r.Generated)
	if err != nil {
		return fmt.Errorf("failed to encode generated invoices: %w", err)
	}
	errorsJSON, err := json.Marshal(r.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	var completedAt *string
	if r.CompletedAt != nil {
		ts := formatTimestamp(*r.CompletedAt)
		completedAt = &ts
	}

	query := `
		INSERT INTO generation_runs (id, run_trigger, status, created_count, skipped_count, failed_count,
			generated_json, errors_json, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			created_count = excluded.created_count,
			skipped_count = excluded.skipped_count,
			failed_count = excluded.failed_count,
			generated_json = excluded.generated_json,
			errors_json = excluded.errors_json,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.Status, r.Created, r.Skipped, r.Failed,
		string(generatedJSON), string(errorsJSON), nullString(r.Error),
		formatTimestamp(r.StartedAt), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save generation run: %w", err)
	}
	return nil
}

// ListGenerationRuns returns runs newest first, optionally filtered by status.
// A non-positive limit returns every run.
func (s *Store) ListGenerationRuns(ctx context.Context, status string, limit int) ([]invoice.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, run_trigger, status, created_count, skipped_count, failed_count,
			generated_json, errors_json, error, started_at, completed_at
		FROM generation_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation runs: %w", err)
	}
	defer rows.Close()

	var runs []invoice.GenerationRun
	for rows.Next() {
		var (
			r                         invoice.GenerationRun
			generatedJSON, errorsJSON sql.NullString
			runErr, completedAt       sql.NullString
			startedAt                 string
		)
		if err := rows.Scan(
			&r.ID, &r.Trigger, &r.Status, &r.Created, &r.Skipped, &r.Failed,
			&generatedJSON, &errorsJSON, &runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan generation run: %w", err)
		}
		if generatedJSON.Valid {
			if err := json.Unmarshal([]byte(generatedJSON.String), &r.Generated); err != nil {
				return nil, fmt.Errorf("failed to decode generated invoices of run %s: %w", r.ID, err)
			}
		}
		if errorsJSON.Valid {
			if err := json.Unmarshal([]byte(errorsJSON.String), &r.Errors); err != nil {
				return nil, fmt.Errorf("failed to decode errors of run %s: %w", r.ID, err)
			}
		}
		r.Error = runErr.String
		r.StartedAt = parseTimestamp(startedAt)
		if completedAt.Valid {
			t := parseTimestamp(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"invoices", "clients", "business_info", "generation_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *invoice.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*invoice.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := invoice.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
