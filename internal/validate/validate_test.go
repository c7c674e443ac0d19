package validate

import (
	"errors"
	"testing"
)

type ticketInput struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

func TestStructReportsJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(ticketInput{Priority: "urgent"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Errors["subject"] != "is required" {
		t.Fatalf("unexpected subject message %q", verr.Errors["subject"])
	}
	if verr.Errors["priority"] != "must be one of: low, medium, high" {
		t.Fatalf("unexpected priority message %q", verr.Errors["priority"])
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	if err := New().Struct(ticketInput{Subject: "help"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
