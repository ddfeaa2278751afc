package dErrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHasCodeWalksWrappedChain(t *testing.T) {
	inner := New(CodeMaxSnapshots, "ledger full")
	outer := Wrap(inner, CodeInternal, "record failed")

	if !HasCode(outer, CodeInternal) {
		t.Fatal("outer code not detected")
	}
	if !HasCode(outer, CodeMaxSnapshots) {
		t.Fatal("inner code not detected")
	}
	if HasCode(outer, CodeHalted) {
		t.Fatal("absent code reported")
	}
}

func TestHasCodeIgnoresUncodedErrors(t *testing.T) {
	err := fmt.Errorf("wrapping: %w", errors.New("plain"))
	if HasCode(err, CodeInternal) {
		t.Fatal("plain error should carry no code")
	}
	if CodeOf(err) != CodeInternal {
		t.Fatal("uncoded errors default to CodeInternal")
	}
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotGovernance:       http.StatusForbidden,
		CodeNotSentinel:         http.StatusForbidden,
		CodeNotReporter:         http.StatusForbidden,
		CodeHalted:              http.StatusServiceUnavailable,
		CodeInstitutionNotFound: http.StatusNotFound,
		CodeAlreadyReporter:     http.StatusConflict,
		CodeZeroAddress:         http.StatusBadRequest,
		CodeIndexOutOfRange:     http.StatusNotFound,
		CodeMaxInstitutions:     http.StatusConflict,
		CodeMaxSnapshots:        http.StatusConflict,
		CodeFeeRequired:         http.StatusPaymentRequired,
		CodeFeeTooHigh:          http.StatusBadRequest,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := ToHTTPStatus(code); got != want {
			t.Errorf("ToHTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
