// Package login is the provider login, account linking and registration core.
//
// It defines the error taxonomy and the small vocabulary shared by the flow
// controller, the identity reconciler and the HTTP layer. Concrete behaviour
// lives in subpackages:
//   - providers: provider adapters (Generic, Github, Dropbox, Spotify, WordPress, Kanidm)
//   - registry: configured adapters and capability queries
//   - flow: the authorization-code state machine
//   - reconcile: login / connect / register decisions
//   - server: HTTP routes and the registration handoff
package login

import "fmt"

// ConnectAction is the explicit intent a user attaches to a provider request.
type ConnectAction string

// Recognized connect actions
const (
	ActionNone       ConnectAction = "none"
	ActionConnect    ConnectAction = "connect"
	ActionDisconnect ConnectAction = "disconnect"
	ActionRegister   ConnectAction = "register"
)

// ParseConnectAction maps a request parameter onto a ConnectAction. An empty
// value means ActionNone.
func ParseConnectAction(s string) (ConnectAction, error) {
	switch ConnectAction(s) {
	case "", ActionNone:
		return ActionNone, nil
	case ActionConnect, ActionDisconnect, ActionRegister:
		return ConnectAction(s), nil
	default:
		return ActionNone, fmt.Errorf("unknown connect action %q", s)
	}
}

// String returns the action as sent on the wire
func (a ConnectAction) String() string {
	if a == "" {
		return string(ActionNone)
	}
	return string(a)
}

// Field length limits applied before identity values are compared or stored.
const (
	MaxUsernameLength = 32
	MaxPasswordLength = 128
	MaxFieldLength    = 64
)
