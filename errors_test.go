package login

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  &Error{Reason: ReasonTimeout, Message: "restart"},
			want: "timeout: restart",
		},
		{
			name: "with cause",
			err:  &Error{Reason: ReasonProviderError, Message: "failed", Err: errors.New("boom")},
			want: "provider_error: failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_IsMatchesByReason(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"unknown provider", UnknownProvider("Nope"), ErrUnknownProvider, true},
		{"state mismatch", StateMismatch(nil), ErrStateMismatch, true},
		{"provider failure", ProviderFailure("token exchange", 500, errors.New("x")), ErrProvider, true},
		{"identity data", IdentityDataFailure("missing id"), ErrIdentityData, true},
		{"already exists", AccountAlreadyExists("GitHub"), ErrAccountAlreadyExists, true},
		{"link conflict", AccountLinkConflict(), ErrAccountLinkConflict, true},
		{"unvetted", UnvettedAccount(), ErrUnvettedAccount, true},
		{"security violation", SecurityViolation(), ErrSecurityViolation, true},
		{"timeout", Timeout("GitHub"), ErrTimeout, true},
		{"wrapped", fmt.Errorf("callback: %w", Timeout("GitHub")), ErrTimeout, true},
		{"different reason", Timeout("GitHub"), ErrSecurityViolation, false},
		{"plain error", errors.New("timeout"), ErrTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderFailure_KeepsStatusForOperators(t *testing.T) {
	cause := errors.New("invalid_grant")
	err := ProviderFailure("token exchange", http.StatusUnauthorized, cause)

	if !errors.Is(err, cause) {
		t.Error("ProviderFailure should wrap the cause")
	}
	if !strings.Contains(err.Err.Error(), "401") || !strings.Contains(err.Err.Error(), "Unauthorized") {
		t.Errorf("cause = %q, want status code and reason phrase", err.Err.Error())
	}
	if strings.Contains(err.Message, "401") || strings.Contains(err.Message, "invalid_grant") {
		t.Errorf("user message leaks provider detail: %q", err.Message)
	}
	if err.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusBadGateway)
	}
}

func TestStateMismatch_GenericMessage(t *testing.T) {
	err := StateMismatch(errors.New("stored state missing"))
	if strings.Contains(err.Message, "missing") {
		t.Errorf("message must not reveal which check failed: %q", err.Message)
	}
	if err.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", err.Status, http.StatusBadRequest)
	}
}

func TestAccountAlreadyExists_MentionsProvider(t *testing.T) {
	err := AccountAlreadyExists("Dropbox")
	if !strings.Contains(err.Message, "Dropbox") {
		t.Errorf("message = %q, want provider label", err.Message)
	}
}

func TestParseConnectAction(t *testing.T) {
	tests := []struct {
		in      string
		want    ConnectAction
		wantErr bool
	}{
		{"", ActionNone, false},
		{"none", ActionNone, false},
		{"connect", ActionConnect, false},
		{"disconnect", ActionDisconnect, false},
		{"register", ActionRegister, false},
		{"Connect", ActionNone, true},
		{"delete", ActionNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConnectAction(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConnectAction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseConnectAction(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConnectAction_String(t *testing.T) {
	if got := ConnectAction("").String(); got != "none" {
		t.Errorf("String() = %q, want none", got)
	}
	if got := ActionRegister.String(); got != "register" {
		t.Errorf("String() = %q, want register", got)
	}
}
