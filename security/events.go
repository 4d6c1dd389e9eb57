package security

// Event type constants for security audit logging.
const (
	// Authorization flow events

	// EventAuthorizationFlowStarted is logged when a redirect to a provider is issued
	EventAuthorizationFlowStarted = "authorization_flow_started"

	// EventProviderStateMismatch is logged when a callback state is missing, replayed or wrong
	EventProviderStateMismatch = "provider_state_mismatch"

	// EventProviderCodeExchangeFailed is logged when the token exchange or resource-owner fetch fails
	EventProviderCodeExchangeFailed = "provider_code_exchange_failed"

	// EventIdentityDataInvalid is logged when the resource-owner payload is unusable
	EventIdentityDataInvalid = "identity_data_invalid"

	// Login events

	// EventLoginSucceeded is logged when a provider identity signs in a local account
	EventLoginSucceeded = "login_succeeded"

	// EventLoginDenied is logged for every rejected reconciliation
	EventLoginDenied = "login_denied"

	// Linkage events

	// EventAccountConnected is logged when a provider identity is linked to an account
	EventAccountConnected = "account_connected"

	// EventAccountDisconnected is logged when a linkage is cleared
	EventAccountDisconnected = "account_disconnected"

	// EventConnectSessionStarted is logged when a signed-in user asks to connect a provider
	EventConnectSessionStarted = "connect_session_started"

	// EventConnectSessionHijackDetected is logged when a connect session belongs to another user
	EventConnectSessionHijackDetected = "connect_session_hijack_detected"

	// EventConnectSessionExpired is logged when a connect session outlived its timeout
	EventConnectSessionExpired = "connect_session_expired"

	// EventConnectSessionForgetFailed is logged when a connect session could not be deleted
	EventConnectSessionForgetFailed = "connect_session_forget_failed"

	// Registration events

	// EventRegistrationProposed is logged when a Register decision is handed to the UI
	EventRegistrationProposed = "registration_proposed"

	// EventRegistrationRequested is logged when the confirmed registration is handed off
	EventRegistrationRequested = "registration_requested"

	// EventRegistrationTokenMismatch is logged when a confirmation presents the wrong token
	EventRegistrationTokenMismatch = "registration_token_mismatch" //nolint:gosec // G101: event type name, not a credential
)
