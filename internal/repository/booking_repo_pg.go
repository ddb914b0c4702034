package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// CompareAndSetStatus moves a booking from expected to next and applies
	// patch in one atomic write. It fails with ErrConcurrentModification when
	// the stored status or version no longer match.
	CompareAndSetStatus(ctx context.Context, id string, expected domain.BookingStatus, expectedVersion int64, next domain.BookingStatus, patch domain.BookingPatch) (*domain.Booking, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	ListByItem(ctx context.Context, itemID string) ([]domain.Booking, error)
}

const bookingColumns = `id, farmer_id, supplier_id, operator_id, item_id, item_category, purpose, status,
	work_date, start_time, estimated_duration_seconds, location, location_lat, location_lng, final_price,
	otp_code, otp_expires_at, otp_attempts, otp_reissues, needs_admin,
	farmer_amount, supplier_amount, commission, payment_date, payment_proof, cancel_reason,
	expires_at, version, created_at, updated_at`

type PGBookingRepository struct {
	db       *pgxpool.Pool
	attempts int
}

func NewBookingRepository(db *pgxpool.Pool, retryAttempts int) *PGBookingRepository {
	if retryAttempts <= 0 {
		retryAttempts = defaultRetryAttempts
	}
	return &PGBookingRepository{db: db, attempts: retryAttempts}
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return retryExec(ctx, r.attempts, func() error {
		_, err := r.db.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`,
			bookingArgs(booking)...)
		return err
	})
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := retry(ctx, r.attempts, func() (*domain.Booking, error) {
		return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b, err
}

func (r *PGBookingRepository) CompareAndSetStatus(ctx context.Context, id string, expected domain.BookingStatus, expectedVersion int64, next domain.BookingStatus, patch domain.BookingPatch) (*domain.Booking, error) {
	return retry(ctx, r.attempts, func() (*domain.Booking, error) {
		return r.compareAndSet(ctx, id, expected, expectedVersion, next, patch)
	})
}

func (r *PGBookingRepository) compareAndSet(ctx context.Context, id string, expected domain.BookingStatus, expectedVersion int64, next domain.BookingStatus, patch domain.BookingPatch) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	updated, err := applyCAS(current, expected, expectedVersion, next, patch, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	args := bookingArgs(updated)
	if _, err := tx.Exec(ctx, `UPDATE bookings SET
			farmer_id=$2, supplier_id=$3, operator_id=$4, item_id=$5, item_category=$6, purpose=$7, status=$8,
			work_date=$9, start_time=$10, estimated_duration_seconds=$11, location=$12, location_lat=$13,
			location_lng=$14, final_price=$15, otp_code=$16, otp_expires_at=$17, otp_attempts=$18,
			otp_reissues=$19, needs_admin=$20, farmer_amount=$21, supplier_amount=$22, commission=$23,
			payment_date=$24, payment_proof=$25, cancel_reason=$26, expires_at=$27, version=$28,
			created_at=$29, updated_at=$30
		WHERE id=$1`, args...); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PGBookingRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return retry(ctx, r.attempts, func() ([]domain.Booking, error) {
		rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
			WHERE status NOT IN ($1, $2, $3) AND expires_at IS NOT NULL AND expires_at <= $4
			ORDER BY expires_at LIMIT $5`,
			string(domain.BookingStatusCompleted), string(domain.BookingStatusCancelled),
			string(domain.BookingStatusExpired), now, limit)
		if err != nil {
			return nil, err
		}
		return collectBookings(rows)
	})
}

func (r *PGBookingRepository) ListByItem(ctx context.Context, itemID string) ([]domain.Booking, error) {
	return retry(ctx, r.attempts, func() ([]domain.Booking, error) {
		rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE item_id=$1 ORDER BY created_at`, itemID)
		if err != nil {
			return nil, err
		}
		return collectBookings(rows)
	})
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func bookingArgs(b *domain.Booking) []any {
	var (
		lat, lng                                 *float64
		otpCode                                  *string
		otpExpires, paymentDate, expiresAt       *time.Time
		farmerAmount, supplierAmount, commission *int64
		otpAttempts                              int
	)
	if b.LocationCoords != nil {
		lat, lng = &b.LocationCoords.Lat, &b.LocationCoords.Lng
	}
	if b.OTP != nil {
		otpCode, otpExpires, otpAttempts = &b.OTP.Code, &b.OTP.ExpiresAt, b.OTP.Attempts
	}
	if pd := b.PaymentDetails; pd != nil {
		farmerAmount, supplierAmount, commission, paymentDate = &pd.FarmerAmount, &pd.SupplierAmount, &pd.Commission, &pd.PaymentDate
	}
	if !b.ExpiresAt.IsZero() {
		expiresAt = &b.ExpiresAt
	}
	return []any{
		b.ID, b.FarmerID, b.SupplierID, b.OperatorID, b.ItemID, b.ItemCategory, b.Purpose, string(b.Status),
		b.Date, b.StartTime, int64(b.EstimatedDuration / time.Second), b.Location, lat, lng, b.FinalPrice,
		otpCode, otpExpires, otpAttempts, b.OTPReissues, b.NeedsAdmin,
		farmerAmount, supplierAmount, commission, paymentDate, b.PaymentProof, b.CancelReason,
		expiresAt, b.Version, b.CreatedAt, b.UpdatedAt,
	}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b                                        domain.Booking
		status                                   string
		durationSeconds                          int64
		lat, lng                                 *float64
		otpCode                                  *string
		otpExpires, paymentDate, expiresAt       *time.Time
		farmerAmount, supplierAmount, commission *int64
		otpAttempts                              int
	)
	if err := row.Scan(&b.ID, &b.FarmerID, &b.SupplierID, &b.OperatorID, &b.ItemID, &b.ItemCategory, &b.Purpose, &status,
		&b.Date, &b.StartTime, &durationSeconds, &b.Location, &lat, &lng, &b.FinalPrice,
		&otpCode, &otpExpires, &otpAttempts, &b.OTPReissues, &b.NeedsAdmin,
		&farmerAmount, &supplierAmount, &commission, &paymentDate, &b.PaymentProof, &b.CancelReason,
		&expiresAt, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	b.EstimatedDuration = time.Duration(durationSeconds) * time.Second
	if lat != nil && lng != nil {
		b.LocationCoords = &domain.Coordinates{Lat: *lat, Lng: *lng}
	}
	if otpCode != nil && otpExpires != nil {
		b.OTP = &domain.OTP{Code: *otpCode, ExpiresAt: *otpExpires, Attempts: otpAttempts}
	}
	if farmerAmount != nil && supplierAmount != nil && commission != nil {
		pd := domain.PaymentDetails{FarmerAmount: *farmerAmount, SupplierAmount: *supplierAmount, Commission: *commission}
		if paymentDate != nil {
			pd.PaymentDate = *paymentDate
		}
		b.PaymentDetails = &pd
	}
	if expiresAt != nil {
		b.ExpiresAt = *expiresAt
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
