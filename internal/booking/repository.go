package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowQuerier and execer are satisfied by both *pgxpool.Pool and pgx.Tx, so the
// same statement helpers serve single writes and reconciliation batches.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)

	// ListActive returns all non-cancelled bookings for a resource.
	ListActive(ctx context.Context, resourceID string) ([]*Booking, error)

	// Update persists b only if the stored row still has expectedVersion.
	// On success b.Version is bumped to expectedVersion+1.
	Update(ctx context.Context, b *Booking, expectedVersion int64) error

	// ApplyBatch atomically persists a reconciliation batch for one resource.
	// Updates are version-checked the same way as Update; any mismatch rolls
	// back the whole batch.
	ApplyBatch(ctx context.Context, creates []*Booking, updates []*Booking) error

	// FindOverlap returns a non-cancelled booking on the resource whose range
	// intersects [start, end), or nil if there is none. excludeID is used
	// during moves to ignore the booking itself.
	FindOverlap(ctx context.Context, resourceID string, start, end time.Time, excludeID string) (*Booking, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var bookingColumns = []string{
	"id", "resource_id", "start_date", "end_date",
	"origin_source", "external_uid", "status", "summary",
	"version", "created_at", "updated_at",
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.ResourceID, &b.StartDate, &b.EndDate,
		&b.Origin.Source, &b.Origin.ExternalUID, &b.Status, &b.Summary,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *pgxRepository) Create(ctx context.Context, b *Booking) error {
	return createTx(ctx, r.pool, b)
}

func createTx(ctx context.Context, q rowQuerier, b *Booking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.bookings").
		Columns("id", "resource_id", "start_date", "end_date",
			"origin_source", "external_uid", "status", "summary", "version").
		Values(b.ID, b.ResourceID, b.StartDate, b.EndDate,
			b.Origin.Source, b.Origin.ExternalUID, b.Status, b.Summary, b.Version).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	err = q.QueryRow(ctx, query, args...).Scan(&b.CreatedAt, &b.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		// Partial-unique index on (origin_source, external_uid) among
		// non-cancelled rows: a concurrent sync already created this event.
		return ErrDuplicateExternalUID
	}
	return err
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	cols := append([]string{}, bookingColumns...)
	cols = append(cols, "count(*) OVER() as total_count")
	query := psql.Select(cols...).From("public.bookings")

	if filter.ResourceID != "" {
		query = query.Where(squirrel.Eq{"resource_id": filter.ResourceID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	// Window intersection: a booking is in [From, To) if it starts before To
	// and ends after From.
	if filter.To != nil {
		query = query.Where(squirrel.Lt{"start_date": filter.To})
	}
	if filter.From != nil {
		query = query.Where(squirrel.Gt{"end_date": filter.From})
	}

	query = query.OrderBy("start_date ASC")

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int

	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.ResourceID, &b.StartDate, &b.EndDate,
			&b.Origin.Source, &b.Origin.ExternalUID, &b.Status, &b.Summary,
			&b.Version, &b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}

	return bookings, total, nil
}

func (r *pgxRepository) ListActive(ctx context.Context, resourceID string) ([]*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	sql, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"resource_id": resourceID}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		OrderBy("start_date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list active bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.ResourceID, &b.StartDate, &b.EndDate,
			&b.Origin.Source, &b.Origin.ExternalUID, &b.Status, &b.Summary,
			&b.Version, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}
	return bookings, nil
}

func (r *pgxRepository) Update(ctx context.Context, b *Booking, expectedVersion int64) error {
	ct, err := execUpdate(ctx, r.pool, b, expectedVersion)
	if err != nil {
		return err
	}
	if ct == 0 {
		// Distinguish a missing row from a version mismatch.
		if _, getErr := r.GetByID(ctx, b.ID); getErr != nil {
			return getErr
		}
		return ErrStaleVersion
	}
	b.Version = expectedVersion + 1
	return nil
}

func execUpdate(ctx context.Context, q execer, b *Booking, expectedVersion int64) (int64, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("resource_id", b.ResourceID).
		Set("start_date", b.StartDate).
		Set("end_date", b.EndDate).
		Set("status", b.Status).
		Set("summary", b.Summary).
		Set("version", expectedVersion+1).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": b.ID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update booking query failed: %w", err)
	}

	ct, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update booking failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *pgxRepository) ApplyBatch(ctx context.Context, creates []*Booking, updates []*Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reconciliation batch failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range creates {
		if err := createTx(ctx, tx, b); err != nil {
			return fmt.Errorf("batch create booking failed: %w", err)
		}
	}
	for _, b := range updates {
		n, err := execUpdate(ctx, tx, b, b.Version-1)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStaleVersion
		}
	}

	return tx.Commit(ctx)
}

func (r *pgxRepository) FindOverlap(ctx context.Context, resourceID string, start, end time.Time, excludeID string) (*Booking, error) {
	// Half-open ranges: overlap iff existing.start < end AND existing.end > start.
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"resource_id": resourceID}).
		Where(squirrel.NotEq{"status": StatusCancelled}).
		Where(squirrel.Lt{"start_date": end}).
		Where(squirrel.Gt{"end_date": start}).
		Limit(1)

	if excludeID != "" {
		query = query.Where(squirrel.NotEq{"id": excludeID})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build check overlap query failed: %w", err)
	}

	b, err := scanBooking(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("check overlap failed: %w", err)
	}
	return b, nil
}
