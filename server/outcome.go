package server

import (
	"errors"
	"net/http"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/reconcile"
	"github.com/giantswarm/oauth-login/storage"
)

// OutcomeKind tells the HTTP layer how to answer.
type OutcomeKind string

// Outcome kinds
const (
	// OutcomeRedirect sends the browser to RedirectURL (provider or return URL)
	OutcomeRedirect OutcomeKind = "redirect"
	// OutcomeRegister asks the user to confirm Registration
	OutcomeRegister OutcomeKind = "register"
	// OutcomeRejected reports Reason and Message
	OutcomeRejected OutcomeKind = "rejected"
)

// Outcome is the structured result of every server operation. Message is
// safe for end users; operator detail only goes to the logs.
type Outcome struct {
	Kind    OutcomeKind  `json:"outcome"`
	Reason  login.Reason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
	Status  int          `json:"-"`

	RedirectURL string `json:"redirect_url,omitempty"`

	// SessionID is set when the browser must switch to a new session
	SessionID string `json:"-"`

	// Decision is the reconcile decision kind behind the outcome, if any
	Decision reconcile.Kind `json:"decision,omitempty"`

	// Account is the signed-in, connected or disconnected account
	Account *storage.Account `json:"-"`

	Registration *RegistrationProposal `json:"registration,omitempty"`

	RegistrationAvailable bool `json:"registration_available,omitempty"`
}

// RegistrationProposal is what the confirmation page shows. Confirmation
// must be posted back with the form.
type RegistrationProposal struct {
	Provider      string `json:"provider"`
	ProviderLabel string `json:"provider_label"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	Confirmation  string `json:"confirmation"`
}

// OK reports whether the outcome is not a rejection
func (o *Outcome) OK() bool {
	return o.Kind != OutcomeRejected
}

func redirectOutcome(url string, kind reconcile.Kind, acc *storage.Account) *Outcome {
	return &Outcome{Kind: OutcomeRedirect, Status: http.StatusFound, RedirectURL: url, Decision: kind, Account: acc}
}

// outcomeFromError turns any error into a rejection. Errors that are not a
// *login.Error become server_error without exposing their text.
func outcomeFromError(err error, returnURL string) *Outcome {
	var lerr *login.Error
	if !errors.As(err, &lerr) {
		lerr = login.NewError(login.ReasonServerError, "An internal error occurred. Please try again later",
			http.StatusInternalServerError, err)
	}
	return &Outcome{
		Kind:        OutcomeRejected,
		Reason:      lerr.Reason,
		Message:     lerr.Message,
		Status:      lerr.Status,
		RedirectURL: returnURL,
		Decision:    reconcile.KindReject,
	}
}

func outcomeFromDecision(d *reconcile.Decision, returnURL string) *Outcome {
	o := outcomeFromError(d.Err, returnURL)
	o.RegistrationAvailable = d.RegistrationAvailable
	return o
}
