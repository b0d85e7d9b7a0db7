// Package account manages the account lifecycle: validation of new
// accounts, the explicit validate → persist → post-create flow, lifecycle
// queries and the administrator approval digest.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-account/internal/credential"
	"github.com/ovaphlow/pitchfork/service-account/internal/mailer"
)

// Store is the persistence the lifecycle manager relies on.
type Store interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByID(ctx context.Context, id int64) (*entity.Account, error)
	HandleNameTaken(ctx context.Context, handle string, excludeID int64) (bool, error)
	ContactEmailsInUse(ctx context.Context, candidates []string, excludeID int64) (map[string]bool, error)
	UpdateMLMemberID(ctx context.Context, id, memberID int64) error
	SetResetPasswordToken(ctx context.Context, id int64, token string, expiresAt time.Time) error
	MarkResetPasswordEmailSent(ctx context.Context, id int64, at time.Time) error
	Approve(ctx context.Context, id int64) (bool, error)
	ListWaitingApproval(ctx context.Context) ([]entity.Account, error)
	ListAdmins(ctx context.Context) ([]entity.Account, error)
}

type ClassYears interface {
	GetByID(ctx context.Context, id int64) (*entity.ClassYear, error)
}

// Mailer delivers a named mail template synchronously.
type Mailer interface {
	Send(ctx context.Context, templateKey string, to []string, data map[string]any) error
}

// MailingList is the remote mailing-list service.
type MailingList interface {
	FindOrCreateMember(ctx context.Context, name, email, emailSub string) (int64, error)
	AddMember(ctx context.Context, listID, memberID int64) error
}

type IDGenerator interface {
	Next() (int64, error)
}

type Options struct {
	// PublicHost is the host used in activation and reset links.
	PublicHost string
	// HookTimeout bounds each call to the mailer and the mailing-list service.
	HookTimeout time.Duration
}

// Service is the account lifecycle manager.
type Service struct {
	store       Store
	classYears  ClassYears
	mailer      Mailer
	mailingList MailingList
	ids         IDGenerator
	opts        Options
	logger      *zap.SugaredLogger
	validate    *validator.Validate
	now         func() time.Time
}

func NewService(store Store, classYears ClassYears, m Mailer, ml MailingList, ids IDGenerator, opts Options, logger *zap.SugaredLogger) *Service {
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = 10 * time.Second
	}
	return &Service{
		store:       store,
		classYears:  classYears,
		mailer:      m,
		mailingList: ml,
		ids:         ids,
		opts:        opts,
		logger:      logger,
		validate:    newValidator(),
		now:         time.Now,
	}
}

// Register validates candidate, persists it as a new unconfirmed account
// waiting for approval and runs the post-create actions. When a post-create
// action fails the persisted account is returned together with the error.
func (s *Service) Register(ctx context.Context, candidate *entity.Account) (*entity.Account, error) {
	candidate.ActivationState = entity.ActivationUnconfirmed
	candidate.ApprovalState = entity.ApprovalWaiting
	candidate.MLMemberID = nil

	a, err := s.Validate(ctx, candidate)
	if err != nil {
		return nil, err
	}

	id, err := s.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}
	a.ID = id
	tok := credential.NewToken(s.now(), credential.ActivationTokenTTL)
	a.ActivationToken = &tok.Value
	a.ActivationTokenExpiresAt = &tok.ExpiresAt

	if err := s.store.Create(ctx, a); err != nil {
		switch {
		case errors.Is(err, repo.ErrHandleNameTaken):
			return nil, ValidationErrors{{Field: "handle_name", Message: msgTaken}}
		case errors.Is(err, repo.ErrEmailTaken):
			return nil, ValidationErrors{{Field: "email", Message: msgTaken}}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Infow("account created", "account_id", a.ID, "handle_name", a.HandleName)

	if err := s.OnCreated(ctx, a); err != nil {
		s.logger.Errorw("post-create action failed", "account_id", a.ID, "err", err)
		return a, err
	}
	return a, nil
}

// OnCreated runs the post-create actions of a freshly persisted account in
// order: activation email, then mailing-list registration. Nothing is
// retried or rolled back; a failed email skips the registration.
func (s *Service) OnCreated(ctx context.Context, a *entity.Account) error {
	if err := s.SendActivationEmail(ctx, a); err != nil {
		return err
	}
	return s.RegisterMailingListMember(ctx, a)
}

// SendActivationEmail mails the activation link to the account address.
func (s *Service) SendActivationEmail(ctx context.Context, a *entity.Account) error {
	link, err := s.ActivationURL(a)
	if err != nil {
		return err
	}
	hookCtx, cancel := context.WithTimeout(ctx, s.opts.HookTimeout)
	defer cancel()

	err = s.mailer.Send(hookCtx, mailer.TemplateEmailConfirmation, []string{a.Email}, map[string]any{
		"FullName":   a.FullName(),
		"HandleName": a.HandleName,
		"URL":        link,
	})
	if err != nil {
		return &ExternalServiceError{Op: "send activation email", Err: err}
	}
	return nil
}

// RegisterMailingListMember subscribes the account to its class year's
// mailing list and stores the remote member id. Accounts that already carry
// a member id are left alone so a repeated trigger does not register twice.
func (s *Service) RegisterMailingListMember(ctx context.Context, a *entity.Account) error {
	if a.MLMemberID != nil {
		s.logger.Debugw("mailing-list member already registered", "account_id", a.ID, "ml_member_id", *a.MLMemberID)
		return nil
	}

	cy, err := s.classYears.GetByID(ctx, a.ClassYearID)
	if err != nil {
		return fmt.Errorf("load class year %d: %w", a.ClassYearID, err)
	}
	if cy.MLListID == nil {
		return fmt.Errorf("class year %d: %w", cy.ID, ErrNoMailingList)
	}

	hookCtx, cancel := context.WithTimeout(ctx, s.opts.HookTimeout)
	defer cancel()

	memberID, err := s.mailingList.FindOrCreateMember(hookCtx, a.FullName(), a.Email, a.EmailMobileValue())
	if err != nil {
		return &ExternalServiceError{Op: "find or create mailing-list member", Err: err}
	}
	if err := s.mailingList.AddMember(hookCtx, *cy.MLListID, memberID); err != nil {
		return &ExternalServiceError{Op: "add mailing-list member", Err: err}
	}
	if err := s.store.UpdateMLMemberID(ctx, a.ID, memberID); err != nil {
		return fmt.Errorf("store ml member id: %w", err)
	}
	a.MLMemberID = &memberID
	s.logger.Infow("mailing-list member registered", "account_id", a.ID, "ml_member_id", memberID, "ml_list_id", *cy.MLListID)
	return nil
}

type digestEntry struct {
	FullName   string
	HandleName string
	Email      string
}

// SendApprovalDigest mails all active administrators one list of the
// confirmed accounts still waiting for approval. The digest is sent even
// when the list is empty.
func (s *Service) SendApprovalDigest(ctx context.Context) error {
	waiting, err := s.store.ListWaitingApproval(ctx)
	if err != nil {
		return fmt.Errorf("list waiting accounts: %w", err)
	}
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		return ErrNoAdmins
	}

	to := make([]string, 0, len(admins))
	for _, a := range admins {
		to = append(to, a.Email)
	}
	entries := make([]digestEntry, 0, len(waiting))
	for i := range waiting {
		entries = append(entries, digestEntry{
			FullName:   waiting[i].FullName(),
			HandleName: waiting[i].HandleName,
			Email:      waiting[i].Email,
		})
	}

	hookCtx, cancel := context.WithTimeout(ctx, s.opts.HookTimeout)
	defer cancel()
	if err := s.mailer.Send(hookCtx, mailer.TemplateApprovalRequest, to, map[string]any{"Waiting": entries}); err != nil {
		return &ExternalServiceError{Op: "send approval digest", Err: err}
	}
	s.logger.Infow("approval digest sent", "admins", len(to), "waiting", len(entries))
	return nil
}

// HasWaitingApproval reports whether any confirmed account waits for approval.
func (s *Service) HasWaitingApproval(ctx context.Context) (bool, error) {
	waiting, err := s.store.ListWaitingApproval(ctx)
	if err != nil {
		return false, fmt.Errorf("list waiting accounts: %w", err)
	}
	return len(waiting) > 0, nil
}

// SendResetPasswordInstructions mails a reset link, issuing a new reset
// token unless the current one is still valid.
func (s *Service) SendResetPasswordInstructions(ctx context.Context, id int64) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	if !credential.Valid(a.ResetPasswordToken, a.ResetPasswordTokenExpiresAt, now) {
		tok := credential.NewToken(now, credential.ResetPasswordTokenTTL)
		if err := s.store.SetResetPasswordToken(ctx, a.ID, tok.Value, tok.ExpiresAt); err != nil {
			return fmt.Errorf("store reset token: %w", err)
		}
		a.ResetPasswordToken = &tok.Value
		a.ResetPasswordTokenExpiresAt = &tok.ExpiresAt
	}

	link, err := s.ResetPasswordURL(a)
	if err != nil {
		return err
	}
	hookCtx, cancel := context.WithTimeout(ctx, s.opts.HookTimeout)
	defer cancel()
	err = s.mailer.Send(hookCtx, mailer.TemplateResetPassword, []string{a.Email}, map[string]any{
		"FullName":   a.FullName(),
		"HandleName": a.HandleName,
		"URL":        link,
	})
	if err != nil {
		return &ExternalServiceError{Op: "send reset password instructions", Err: err}
	}
	if err := s.store.MarkResetPasswordEmailSent(ctx, a.ID, now); err != nil {
		return fmt.Errorf("stamp reset email: %w", err)
	}
	return nil
}

// Approve grants approval to an account waiting for it.
func (s *Service) Approve(ctx context.Context, id int64) error {
	ok, err := s.store.Approve(ctx, id)
	if err != nil {
		return fmt.Errorf("approve account %d: %w", id, err)
	}
	if ok {
		s.logger.Infow("account approved", "account_id", id)
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotWaiting
}

// Get returns the account or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Account, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ActivationURL is the link that redeems the activation token.
func (s *Service) ActivationURL(a *entity.Account) (string, error) {
	if a.ActivationToken == nil || *a.ActivationToken == "" {
		return "", &PreconditionError{Field: "activation_token"}
	}
	return s.link("/activate/", "activation_token", *a.ActivationToken), nil
}

// ResetPasswordURL is the link that redeems the reset password token.
func (s *Service) ResetPasswordURL(a *entity.Account) (string, error) {
	if a.ResetPasswordToken == nil || *a.ResetPasswordToken == "" {
		return "", &PreconditionError{Field: "reset_password_token"}
	}
	return s.link("/reset_password/", "reset_password_token", *a.ResetPasswordToken), nil
}

func (s *Service) link(path, param, token string) string {
	return "http://" + s.opts.PublicHost + path + "?" + param + "=" + url.QueryEscape(token)
}
