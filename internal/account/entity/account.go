package entity

import "time"

// Account represents a row in the `accounts` table.
type Account struct {
	ID          int64   `db:"id" json:"id"`
	Email       string  `db:"email" json:"email" validate:"required,institutional_email"`
	EmailMobile *string `db:"email_mobile" json:"email_mobile,omitempty"`

	PasswordHash string `db:"password_hash" json:"-" validate:"required"`
	PasswordSalt string `db:"password_salt" json:"-"`

	FamilyName  string    `db:"family_name" json:"family_name" validate:"required"`
	GivenName   string    `db:"given_name" json:"given_name" validate:"required"`
	HandleName  string    `db:"handle_name" json:"handle_name" validate:"required"`
	Birthday    time.Time `db:"birthday" json:"birthday" validate:"required"`
	ClassYearID int64     `db:"class_year_id" json:"class_year_id" validate:"required"`

	ActivationState ActivationState `db:"activation_state" json:"activation_state"`
	ApprovalState   ApprovalState   `db:"approval_state" json:"approval_state"`

	ActivationToken             *string    `db:"activation_token" json:"-"`
	ActivationTokenExpiresAt    *time.Time `db:"activation_token_expires_at" json:"-"`
	ResetPasswordToken          *string    `db:"reset_password_token" json:"-"`
	ResetPasswordTokenExpiresAt *time.Time `db:"reset_password_token_expires_at" json:"-"`
	ResetPasswordEmailSentAt    *time.Time `db:"reset_password_email_sent_at" json:"-"`

	LastLoginAt            *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	LastLogoutAt           *time.Time `db:"last_logout_at" json:"last_logout_at,omitempty"`
	LastActivityAt         *time.Time `db:"last_activity_at" json:"last_activity_at,omitempty"`
	LastLoginFromIPAddress *string    `db:"last_login_from_ip_address" json:"-"`

	// MLMemberID links the account to its member record in the external
	// mailing-list system; nil until registration succeeded.
	MLMemberID *int64 `db:"ml_member_id" json:"ml_member_id,omitempty"`

	Admin bool `db:"admin" json:"admin"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins family and given name with a single space.
func (a *Account) FullName() string {
	return a.FamilyName + " " + a.GivenName
}

func (a *Account) IsActive() bool {
	switch a.ActivationState {
	case ActivationActive:
		return true
	case ActivationUnconfirmed:
		return false
	default:
		return false
	}
}

func (a *Account) IsApproved() bool {
	switch a.ApprovalState {
	case ApprovalApproved:
		return true
	case ApprovalWaiting:
		return false
	default:
		return false
	}
}

// EmailMobileValue returns the alternate address or "" when unset.
func (a *Account) EmailMobileValue() string {
	if a.EmailMobile == nil {
		return ""
	}
	return *a.EmailMobile
}

// ClassYear is a cohort; its mailing list receives every member of the cohort.
type ClassYear struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	MLListID *int64 `db:"ml_list_id" json:"ml_list_id,omitempty"`
}
