package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
)

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %v", err)
	return verrs
}

func TestValidate_Accepts(t *testing.T) {
	h := newHarness(existing(1, "hanako@med.hokudai.ac.jp", nil, "hanako"))
	c := validCandidate()

	got, err := h.svc.Validate(context.Background(), c)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Empty(t, h.mail.sent)
}

func TestValidate_RejectsNonInstitutionalEmail(t *testing.T) {
	bad := []string{
		"taro@hokudai.ac.jp",
		"taro@eis.hokudai.ac.jp.evil.com",
		"taro@sci.hokudai.ac.jp",
		"ta.ro@eis.hokudai.ac.jp",
		"taro@EIS.hokudai.ac.jp",
		"@med.hokudai.ac.jp",
		"taro@eisxhokudai.ac.jp",
		"taro@eis.hokudai.ac.jp\n",
		"taro@gmail.com",
	}
	h := newHarness()
	for _, email := range bad {
		t.Run(email, func(t *testing.T) {
			c := validCandidate()
			c.Email = email
			_, err := h.svc.Validate(context.Background(), c)
			verrs := validationErrors(t, err)
			assert.True(t, verrs.Has("email", msgInvalid), "errors: %v", verrs)
			assert.Len(t, verrs, 1)
		})
	}
}

func TestValidate_AcceptsBothDomains(t *testing.T) {
	h := newHarness()
	for _, email := range []string{"a_b-9@eis.hokudai.ac.jp", "Z@med.hokudai.ac.jp"} {
		c := validCandidate()
		c.Email = email
		_, err := h.svc.Validate(context.Background(), c)
		assert.NoError(t, err, email)
	}
}

func TestValidate_CollectsAllBlankFields(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Validate(context.Background(), &entity.Account{})
	verrs := validationErrors(t, err)

	for _, f := range []string{"email", "password_hash", "family_name", "given_name", "handle_name", "birthday", "class_year_id"} {
		assert.True(t, verrs.Has(f, msgBlank), "missing blank error for %s: %v", f, verrs)
	}
	assert.Len(t, verrs, 7)
}

func TestValidate_HandleNameTaken(t *testing.T) {
	h := newHarness(existing(1, "jiro@eis.hokudai.ac.jp", nil, "taro"))
	_, err := h.svc.Validate(context.Background(), validCandidate())
	verrs := validationErrors(t, err)
	assert.Equal(t, ValidationErrors{{Field: "handle_name", Message: msgTaken}}, verrs)
}

func TestValidate_CrossFieldEmailUniqueness(t *testing.T) {
	cases := []struct {
		name   string
		other  *entity.Account
		fields []string
	}{
		{"email equals other email", existing(1, "taro@eis.hokudai.ac.jp", nil, "x"), []string{"email"}},
		{"email equals other mobile", existing(1, "x@eis.hokudai.ac.jp", strPtr("taro@eis.hokudai.ac.jp"), "x"), []string{"email"}},
		{"mobile equals other email", existing(1, "taro@example.com", nil, "x"), []string{"email_mobile"}},
		{"mobile equals other mobile", existing(1, "x@eis.hokudai.ac.jp", strPtr("taro@example.com"), "x"), []string{"email_mobile"}},
		{"both taken", existing(1, "taro@example.com", strPtr("taro@eis.hokudai.ac.jp"), "x"), []string{"email", "email_mobile"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(tc.other)
			_, err := h.svc.Validate(context.Background(), validCandidate())
			verrs := validationErrors(t, err)
			require.Len(t, verrs, len(tc.fields))
			for _, f := range tc.fields {
				assert.True(t, verrs.Has(f, msgTaken), "want %s taken, got %v", f, verrs)
			}
		})
	}
}

func TestValidate_ExcludesSelfAndIgnoresBlanks(t *testing.T) {
	self := existing(5, "taro@eis.hokudai.ac.jp", strPtr("taro@example.com"), "taro")
	blank := existing(6, "jiro@eis.hokudai.ac.jp", strPtr(""), "jiro")
	h := newHarness(self, blank)

	c := validCandidate()
	c.ID = 5
	c.EmailMobile = nil
	_, err := h.svc.Validate(context.Background(), c)
	assert.NoError(t, err)

	c.EmailMobile = strPtr("")
	_, err = h.svc.Validate(context.Background(), c)
	assert.NoError(t, err)
}

func TestValidate_BirthdayRequired(t *testing.T) {
	h := newHarness()
	c := validCandidate()
	c.Birthday = time.Time{}
	_, err := h.svc.Validate(context.Background(), c)
	verrs := validationErrors(t, err)
	assert.Equal(t, ValidationErrors{{Field: "birthday", Message: msgBlank}}, verrs)
}

func TestValidationErrors_Error(t *testing.T) {
	v := ValidationErrors{{"email", msgInvalid}, {"handle_name", msgTaken}}
	assert.Equal(t, "validation failed: email is invalid; handle_name has already been taken", v.Error())
}

func TestNewValidator_RegistersCustomTags(t *testing.T) {
	assert.NotPanics(t, func() { newValidator() })
}

func TestValidationErrors_Merge(t *testing.T) {
	v := ValidationErrors{{Field: "birthday", Message: msgInvalid}}
	v.merge(ValidationErrors{
		{Field: "birthday", Message: msgBlank},
		{Field: "email", Message: msgInvalid},
	})
	assert.Equal(t, ValidationErrors{
		{Field: "birthday", Message: msgInvalid},
		{Field: "email", Message: msgInvalid},
	}, v)
}
