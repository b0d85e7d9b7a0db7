package entity

import (
	"database/sql/driver"
	"fmt"
)

// ActivationState tracks email confirmation of an account.
type ActivationState string

const (
	ActivationUnconfirmed ActivationState = "unconfirmed"
	ActivationActive      ActivationState = "active"
)

// ParseActivationState rejects anything outside the closed set.
func ParseActivationState(s string) (ActivationState, error) {
	switch st := ActivationState(s); st {
	case ActivationUnconfirmed, ActivationActive:
		return st, nil
	default:
		return "", fmt.Errorf("unknown activation state %q", s)
	}
}

func (s ActivationState) String() string { return string(s) }

func (s ActivationState) Value() (driver.Value, error) {
	if _, err := ParseActivationState(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *ActivationState) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	st, err := ParseActivationState(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ApprovalState tracks administrator approval of an account.
type ApprovalState string

const (
	ApprovalWaiting  ApprovalState = "waiting"
	ApprovalApproved ApprovalState = "approved"
)

// ParseApprovalState rejects anything outside the closed set.
func ParseApprovalState(s string) (ApprovalState, error) {
	switch st := ApprovalState(s); st {
	case ApprovalWaiting, ApprovalApproved:
		return st, nil
	default:
		return "", fmt.Errorf("unknown approval state %q", s)
	}
}

func (s ApprovalState) String() string { return string(s) }

func (s ApprovalState) Value() (driver.Value, error) {
	if _, err := ParseApprovalState(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *ApprovalState) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	st, err := ParseApprovalState(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("cannot scan %T into state", src)
	}
}
