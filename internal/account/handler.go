package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account/internal/credential"
)

// Handler exposes HTTP endpoints for account registration and administration.
type Handler struct {
	svc    *Service
	hasher credential.PasswordHasher
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, hasher credential.PasswordHasher, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, hasher: hasher, logger: logger}
}

// RegisterRequest request body for the registration endpoint.
type RegisterRequest struct {
	Email       string `json:"email"`
	EmailMobile string `json:"email_mobile"`
	Password    string `json:"password"`
	FamilyName  string `json:"family_name"`
	GivenName   string `json:"given_name"`
	HandleName  string `json:"handle_name"`
	Birthday    string `json:"birthday"` // YYYY-MM-DD
	ClassYearID int64  `json:"class_year_id"`
}

type validationResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	candidate, fieldErrs, err := h.candidateFrom(req)
	if err != nil {
		h.logger.Errorw("hash password failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}
	if len(fieldErrs) > 0 {
		// report request level errors together with every other failed check
		if _, err := h.svc.Validate(r.Context(), candidate); err != nil {
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				h.logger.Errorw("validate account failed", "err", err)
				h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
				return
			}
			fieldErrs.merge(verrs)
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: "validation failed", Details: fieldErrs})
		return
	}

	a, err := h.svc.Register(r.Context(), candidate)
	if err != nil {
		var verrs ValidationErrors
		var extErr *ExternalServiceError
		switch {
		case errors.As(err, &verrs):
			h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: "validation failed", Details: verrs})
		case a != nil && errors.As(err, &extErr):
			h.writeJSON(w, http.StatusBadGateway, map[string]any{"error": "post-create action failed", "id": a.ID})
		case a != nil:
			h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "post-create action failed", "id": a.ID})
		default:
			h.logger.Warnw("register failed", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, a)
}

// candidateFrom maps the request to an account, hashing the password.
// Request level problems (an unparsable birthday) come back as field errors
// so they are reported with the same shape as validation failures.
func (h *Handler) candidateFrom(req RegisterRequest) (*entity.Account, ValidationErrors, error) {
	var fieldErrs ValidationErrors
	a := &entity.Account{
		Email:       strings.TrimSpace(req.Email),
		FamilyName:  strings.TrimSpace(req.FamilyName),
		GivenName:   strings.TrimSpace(req.GivenName),
		HandleName:  strings.TrimSpace(req.HandleName),
		ClassYearID: req.ClassYearID,
	}
	if m := strings.TrimSpace(req.EmailMobile); m != "" {
		a.EmailMobile = &m
	}
	if req.Birthday != "" {
		b, err := time.Parse(time.DateOnly, req.Birthday)
		if err != nil {
			fieldErrs.add("birthday", msgInvalid)
		} else {
			a.Birthday = b
		}
	}
	if req.Password != "" {
		a.PasswordSalt = credential.NewSalt()
		hash, err := h.hasher.Hash(req.Password, a.PasswordSalt)
		if err != nil {
			return nil, nil, err
		}
		a.PasswordHash = hash
	}
	return a, fieldErrs, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SendResetPasswordInstructions(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Approve(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "approval_state": entity.ApprovalApproved})
}

func (h *Handler) ApprovalDigest(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SendApprovalDigest(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var extErr *ExternalServiceError
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
	case errors.Is(err, ErrNotWaiting):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &extErr):
		h.logger.Warnw("external service failed", "op", extErr.Op, "err", extErr.Err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": extErr.Op + " failed"})
	default:
		h.logger.Errorw("request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
