package account

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/account/repo"
)

type memStore struct {
	mu        sync.Mutex
	accounts  map[int64]*entity.Account
	createErr error
	updateErr error
	mlUpdates int
}

func newMemStore(accounts ...*entity.Account) *memStore {
	s := &memStore{accounts: make(map[int64]*entity.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memStore) Create(_ context.Context, a *entity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) HandleNameTaken(_ context.Context, handle string, excludeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.accounts {
		if id != excludeID && a.HandleName == handle {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ContactEmailsInUse(_ context.Context, candidates []string, excludeID int64) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pooled := make(map[string]bool)
	for id, a := range s.accounts {
		if id == excludeID {
			continue
		}
		if a.Email != "" {
			pooled[a.Email] = true
		}
		if m := a.EmailMobileValue(); m != "" {
			pooled[m] = true
		}
	}
	out := make(map[string]bool)
	for _, c := range candidates {
		if pooled[c] {
			out[c] = true
		}
	}
	return out, nil
}

func (s *memStore) UpdateMLMemberID(_ context.Context, id, memberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.mlUpdates++
	a.MLMemberID = &memberID
	return nil
}

func (s *memStore) SetResetPasswordToken(_ context.Context, id int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.ResetPasswordToken = &token
	a.ResetPasswordTokenExpiresAt = &expiresAt
	return nil
}

func (s *memStore) MarkResetPasswordEmailSent(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.ResetPasswordEmailSentAt = &at
	return nil
}

func (s *memStore) Approve(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.ApprovalState != entity.ApprovalWaiting {
		return false, nil
	}
	a.ApprovalState = entity.ApprovalApproved
	return true, nil
}

func (s *memStore) list(keep func(*entity.Account) bool) []entity.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Account
	for _, a := range s.accounts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListWaitingApproval(_ context.Context) ([]entity.Account, error) {
	return s.list(func(a *entity.Account) bool {
		return a.ActivationState == entity.ActivationActive && a.ApprovalState == entity.ApprovalWaiting
	}), nil
}

func (s *memStore) ListAdmins(_ context.Context) ([]entity.Account, error) {
	return s.list(func(a *entity.Account) bool {
		return a.ActivationState == entity.ActivationActive && a.ApprovalState == entity.ApprovalApproved && a.Admin
	}), nil
}

type classYears map[int64]*entity.ClassYear

func (c classYears) GetByID(_ context.Context, id int64) (*entity.ClassYear, error) {
	cy, ok := c[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cy, nil
}

type sentMail struct {
	Template string
	To       []string
	Data     map[string]any
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, templateKey string, to []string, data map[string]any) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{Template: templateKey, To: to, Data: data})
	return nil
}

type fakeMailingList struct {
	memberID  int64
	findErr   error
	addErr    error
	findCalls []string
	added     [][2]int64
}

func (f *fakeMailingList) FindOrCreateMember(_ context.Context, name, email, emailSub string) (int64, error) {
	f.findCalls = append(f.findCalls, name+"|"+email+"|"+emailSub)
	if f.findErr != nil {
		return 0, f.findErr
	}
	return f.memberID, nil
}

func (f *fakeMailingList) AddMember(_ context.Context, listID, memberID int64) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, [2]int64{listID, memberID})
	return nil
}

type seqIDs struct{ next int64 }

func (s *seqIDs) Next() (int64, error) {
	if s.next < 0 {
		return 0, errors.New("node exhausted")
	}
	s.next++
	return s.next, nil
}

type harness struct {
	svc   *Service
	store *memStore
	mail  *fakeMailer
	ml    *fakeMailingList
}

func newHarness(accounts ...*entity.Account) *harness {
	listID := int64(77)
	h := &harness{
		store: newMemStore(accounts...),
		mail:  &fakeMailer{},
		ml:    &fakeMailingList{memberID: 900},
	}
	cys := classYears{
		3: {ID: 3, Name: "2024", MLListID: &listID},
		4: {ID: 4, Name: "staff"},
	}
	h.svc = NewService(h.store, cys, h.mail, h.ml, &seqIDs{next: 1000},
		Options{PublicHost: "example.org", HookTimeout: time.Second}, zap.NewNop().Sugar())
	h.svc.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return h
}

func strPtr(s string) *string { return &s }

func validCandidate() *entity.Account {
	return &entity.Account{
		Email:        "taro@eis.hokudai.ac.jp",
		EmailMobile:  strPtr("taro@example.com"),
		PasswordHash: "hash",
		PasswordSalt: "salt",
		FamilyName:   "Sato",
		GivenName:    "Taro",
		HandleName:   "taro",
		Birthday:     time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		ClassYearID:  3,
	}
}

func existing(id int64, email string, mobile *string, handle string) *entity.Account {
	return &entity.Account{
		ID: id, Email: email, EmailMobile: mobile, HandleName: handle,
		FamilyName: "Other", GivenName: "Person", PasswordHash: "h",
		Birthday: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), ClassYearID: 3,
		ActivationState: entity.ActivationActive, ApprovalState: entity.ApprovalApproved,
	}
}
