// Package server connects the login core to HTTP.
//
// The Server type composes the flow controller, the identity reconciler and
// the registration handoff behind three operations:
//
//   - Start: pre-checks a provider request and returns the redirect to the
//     provider (or the result of a disconnect)
//   - Finish: completes the callback and applies the reconcile decision
//   - ConfirmRegistration: forwards a confirmed pending registration to the
//     Registrar
//
// Every result is an Outcome carrying a reason code and a user message. The
// Handler exposes the operations as routes:
//
//	GET  /login      begin, or finish when code and state are present
//	GET  /callback   finish
//	POST /register   confirm a pending registration
//	GET  /providers  list providers (?registration=1 filters)
//	GET  /account    signed-in account and its connected providers
//
// Example usage:
//
//	reg, _ := registry.NewFromOptions(registry.Builtin, options, providers.Config{RedirectURL: base + "/login"})
//	store := memory.New()
//
//	srv, err := server.New(server.Dependencies{
//	    Providers: reg,
//	    Accounts:  store,
//	    Sessions:  store,
//	    Registrar: server.NewStoreRegistrar(store, nil),
//	}, &server.Config{BaseURL: base, AllowRegistration: true}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	server.NewHandler(srv, logger).RegisterRoutes(mux)
//
// Signed-in state is owned by an AccountSession. The default implementation
// keeps the signed-in account id in the session store next to the login
// values.
package server
