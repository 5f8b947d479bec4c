package calllog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calorie-coach/pkg/utils"
)

// PostgresStore reads users and mutates call_logs through database/sql (pgx stdlib driver).
//
// NOTE: This store assumes the following tables exist (owned by the onboarding app):
// - users (id, phone UNIQUE, pin, call_window_start, call_window_end, timezone, max_retries, ...)
// - call_logs (id, user_id, scheduled_at, started_at, ended_at, status, retries,
//   transcript_id, error_message, created_at, updated_at)
type PostgresStore struct {
	db    *sql.DB
	pins  PINMatcher
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB, pins PINMatcher) *PostgresStore {
	return &PostgresStore{db: db, pins: pins, clock: time.Now}
}

const userColumns = `id, phone, pin, call_window_start, call_window_end, timezone, max_retries, created_at, updated_at`

const callLogColumns = `id, user_id, scheduled_at, started_at, ended_at, status, retries,
       transcript_id, error_message, created_at, updated_at`

func (s *PostgresStore) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	if phone == "" {
		return User{}, ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE phone = $1 LIMIT 1`
	return scanUser(s.db.QueryRowContext(ctx, q, phone))
}

// FindUserByPhoneAndPIN loads the user by phone and compares the PIN in process,
// so the comparison is constant-time and works for hashed PINs.
func (s *PostgresStore) FindUserByPhoneAndPIN(ctx context.Context, phone, pin string) (User, error) {
	u, err := s.FindUserByPhone(ctx, phone)
	if err != nil {
		return User{}, err
	}
	if s.pins == nil || !s.pins.Match(pin, u.PIN) {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetCallLog(ctx context.Context, id string) (CallLog, error) {
	if id == "" {
		return CallLog{}, ErrNotFound
	}
	const q = `SELECT ` + callLogColumns + ` FROM call_logs WHERE id = $1`
	return scanCallLog(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) UpdateCallLog(ctx context.Context, id string, fn UpdateFunc) (CallLog, error) {
	if id == "" {
		return CallLog{}, ErrNotFound
	}
	var out CallLog
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize concurrent transitions of the same call.
		const lockQ = `SELECT ` + callLogColumns + ` FROM call_logs WHERE id = $1 FOR UPDATE`
		cur, err := scanCallLog(tx.QueryRowContext(ctx, lockQ, id))
		if err != nil {
			return err
		}
		p, err := fn(cur)
		if err != nil {
			out = cur
			return err
		}
		if p.Empty() {
			out = cur
			return nil
		}
		next := p.Apply(cur, s.clock().UTC())
		const updQ = `
UPDATE call_logs
SET status = $2, started_at = $3, ended_at = $4, retries = $5,
    transcript_id = $6, error_message = $7, updated_at = $8
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, updQ,
			next.ID,
			next.Status,
			nullTime(next.StartedAt),
			nullTime(next.EndedAt),
			next.Retries,
			nullString(next.TranscriptID),
			nullString(next.ErrorMessage),
			next.UpdatedAt,
		); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return utils.HealthCheck(ctx, s.db, 2*time.Second)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(
		&u.ID,
		&u.Phone,
		&u.PIN,
		&u.CallWindowStart,
		&u.CallWindowEnd,
		&u.Timezone,
		&u.MaxRetries,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func scanCallLog(row *sql.Row) (CallLog, error) {
	var (
		l          CallLog
		startedAt  sql.NullTime
		endedAt    sql.NullTime
		transcript sql.NullString
		errMsg     sql.NullString
	)
	if err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.ScheduledAt,
		&startedAt,
		&endedAt,
		&l.Status,
		&l.Retries,
		&transcript,
		&errMsg,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		l.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		l.EndedAt = &t
	}
	l.TranscriptID = transcript.String
	l.ErrorMessage = errMsg.String
	return l, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
