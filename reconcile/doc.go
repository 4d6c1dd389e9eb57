// Package reconcile decides what a provider identity means for the local
// accounts.
//
// PreCheck runs before the redirect to the provider and handles the
// disconnect and connect intents. Reconcile runs after a successful code
// exchange and yields one of:
//
//   - KindConnectExisting: the identity was linked to the account named by
//     the connect session
//   - KindLogin: an existing account was signed in
//   - KindRegister: no account exists and registration may proceed
//   - KindReject: a *login.Error explains why nothing happened
//
// A connect session is bound to the user that started it and expires after
// session.ConnectTimeout. Using it from another user, or after it expired,
// deletes it.
package reconcile
