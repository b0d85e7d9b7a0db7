package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrHandleNameTaken and ErrEmailTaken are returned by Create when the
	// unique indexes reject a row that slipped past the validation pre-check.
	ErrHandleNameTaken = errors.New("handle name already taken")
	ErrEmailTaken      = errors.New("email already taken")
)

const accountColumns = `id, email, email_mobile, password_hash, password_salt,
	family_name, given_name, handle_name, birthday, class_year_id,
	activation_state, approval_state,
	activation_token, activation_token_expires_at,
	reset_password_token, reset_password_token_expires_at, reset_password_email_sent_at,
	last_login_at, last_logout_at, last_activity_at, last_login_from_ip_address,
	ml_member_id, admin, created_at, updated_at`

// AccountRepo provides data access for the accounts table using sqlx.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the accounts table and its owned child tables if they
// do not exist (idempotent). class_years must exist first, see ClassYearRepo.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id BIGINT PRIMARY KEY,
  email TEXT NOT NULL,
  email_mobile TEXT,
  password_hash TEXT NOT NULL,
  password_salt TEXT NOT NULL DEFAULT '',
  family_name TEXT NOT NULL DEFAULT '',
  given_name TEXT NOT NULL DEFAULT '',
  handle_name TEXT NOT NULL DEFAULT '',
  birthday DATE NOT NULL,
  class_year_id BIGINT NOT NULL REFERENCES class_years(id),
  activation_state TEXT NOT NULL DEFAULT 'unconfirmed',
  approval_state TEXT NOT NULL DEFAULT 'waiting',
  activation_token TEXT,
  activation_token_expires_at TIMESTAMPTZ,
  reset_password_token TEXT,
  reset_password_token_expires_at TIMESTAMPTZ,
  reset_password_email_sent_at TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  last_logout_at TIMESTAMPTZ,
  last_activity_at TIMESTAMPTZ,
  last_login_from_ip_address TEXT,
  ml_member_id BIGINT,
  admin BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_handle_name ON accounts(handle_name);
CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_email ON accounts(email);
CREATE INDEX IF NOT EXISTS idx_accounts_email_mobile ON accounts(email_mobile);
CREATE INDEX IF NOT EXISTS idx_accounts_states ON accounts(activation_state, approval_state);
CREATE INDEX IF NOT EXISTS idx_accounts_activation_token ON accounts(activation_token);
CREATE INDEX IF NOT EXISTS idx_accounts_reset_password_token ON accounts(reset_password_token);

CREATE TABLE IF NOT EXISTS access_tokens (
  id BIGSERIAL PRIMARY KEY,
  account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  token TEXT NOT NULL UNIQUE,
  expires_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS document_files (
  id BIGSERIAL PRIMARY KEY,
  account_id BIGINT REFERENCES accounts(id) ON DELETE SET NULL,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new account row. The id is assigned by the caller.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO accounts (id, email, email_mobile, password_hash, password_salt,
		family_name, given_name, handle_name, birthday, class_year_id,
		activation_state, approval_state, activation_token, activation_token_expires_at, admin)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, q,
		a.ID, a.Email, a.EmailMobile, a.PasswordHash, a.PasswordSalt,
		a.FamilyName, a.GivenName, a.HandleName, a.Birthday, a.ClassYearID,
		a.ActivationState, a.ApprovalState, a.ActivationToken, a.ActivationTokenExpiresAt, a.Admin,
	)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "uq_accounts_handle_name":
		return ErrHandleNameTaken
	case "uq_accounts_email":
		return ErrEmailTaken
	default:
		return err
	}
}

// GetByID fetches a full account row or ErrNotFound.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// HandleNameTaken reports whether another account already uses handle.
func (r *AccountRepo) HandleNameTaken(ctx context.Context, handle string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM accounts WHERE handle_name=$1 AND id<>$2)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, q, handle, excludeID); err != nil {
		return false, err
	}
	return taken, nil
}

// ContactEmailsInUse returns the subset of candidates that appear as email or
// email_mobile of any account other than excludeID. Both columns are pooled.
func (r *AccountRepo) ContactEmailsInUse(ctx context.Context, candidates []string, excludeID int64) (map[string]bool, error) {
	inUse := make(map[string]bool)
	if len(candidates) == 0 {
		return inUse, nil
	}
	const q = `SELECT email, email_mobile FROM accounts
		WHERE id<>$1 AND (email = ANY($2) OR email_mobile = ANY($2))`
	rows, err := r.db.QueryxContext(ctx, q, excludeID, pq.Array(candidates))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pooled := make(map[string]struct{})
	for rows.Next() {
		var email string
		var mobile sql.NullString
		if err := rows.Scan(&email, &mobile); err != nil {
			return nil, err
		}
		if email != "" {
			pooled[email] = struct{}{}
		}
		if mobile.Valid && mobile.String != "" {
			pooled[mobile.String] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if _, ok := pooled[c]; ok {
			inUse[c] = true
		}
	}
	return inUse, nil
}

// UpdateMLMemberID stores the remote mailing-list member id.
func (r *AccountRepo) UpdateMLMemberID(ctx context.Context, id, memberID int64) error {
	const q = `UPDATE accounts SET ml_member_id=$2, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, q, id, memberID)
}

// SetResetPasswordToken stores a fresh reset token with its expiry.
func (r *AccountRepo) SetResetPasswordToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	const q = `UPDATE accounts SET reset_password_token=$2, reset_password_token_expires_at=$3, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, q, id, token, expiresAt)
}

// MarkResetPasswordEmailSent stamps when reset instructions went out.
func (r *AccountRepo) MarkResetPasswordEmailSent(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE accounts SET reset_password_email_sent_at=$2, updated_at=NOW() WHERE id=$1`
	return r.execOne(ctx, q, id, at)
}

// Approve moves a waiting account to approved. Returns false when the
// account was not waiting.
func (r *AccountRepo) Approve(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE accounts SET approval_state='approved', updated_at=NOW()
		WHERE id=$1 AND approval_state='waiting' RETURNING 1`
	var one int
	if err := r.db.GetContext(ctx, &one, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListWaitingApproval returns confirmed accounts still waiting for approval.
func (r *AccountRepo) ListWaitingApproval(ctx context.Context) ([]entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts
		WHERE activation_state='active' AND approval_state='waiting' ORDER BY id`
	var out []entity.Account
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAdmins returns active, approved administrators.
func (r *AccountRepo) ListAdmins(ctx context.Context) ([]entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts
		WHERE activation_state='active' AND approval_state='approved' AND admin=true ORDER BY id`
	var out []entity.Account
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AccountRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
