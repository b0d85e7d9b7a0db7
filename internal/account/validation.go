package account

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
)

const (
	msgBlank   = "can't be blank"
	msgInvalid = "is invalid"
	msgTaken   = "has already been taken"
)

var institutionalEmail = regexp.MustCompile(`^[0-9a-zA-Z_-]+@(eis|med)\.hokudai\.ac\.jp$`)

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by column name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("db"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("institutional_email", func(fl validator.FieldLevel) bool {
		return institutionalEmail.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate runs every field and uniqueness check against candidate and
// returns it unchanged when all pass. Failures come back together as
// ValidationErrors; nothing is written either way.
func (s *Service) Validate(ctx context.Context, candidate *entity.Account) (*entity.Account, error) {
	var errs ValidationErrors

	if err := s.validate.StructCtx(ctx, candidate); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("validate account: %w", err)
		}
		for _, fe := range fieldErrs {
			errs.add(fe.Field(), fieldMessage(fe))
		}
	}

	if candidate.HandleName != "" {
		taken, err := s.store.HandleNameTaken(ctx, candidate.HandleName, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("check handle name: %w", err)
		}
		if taken {
			errs.add("handle_name", msgTaken)
		}
	}

	var candidates []string
	if candidate.Email != "" {
		candidates = append(candidates, candidate.Email)
	}
	if m := candidate.EmailMobileValue(); m != "" {
		candidates = append(candidates, m)
	}
	if len(candidates) > 0 {
		inUse, err := s.store.ContactEmailsInUse(ctx, candidates, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("check contact emails: %w", err)
		}
		if inUse[candidate.Email] {
			errs.add("email", msgTaken)
		}
		if m := candidate.EmailMobileValue(); m != "" && inUse[m] {
			errs.add("email_mobile", msgTaken)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return candidate, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgBlank
	case "institutional_email":
		return msgInvalid
	default:
		return msgInvalid
	}
}
