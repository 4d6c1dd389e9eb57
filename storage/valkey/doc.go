// Package valkey keeps login session values in Valkey (or any Redis
// compatible server).
//
// A shared session store is what lets a deployment run more than one
// instance: the redirect to the provider and the callback may reach
// different instances, and both must see the same AuthorizationState.
//
// Keys have the form
//
//	{prefix}session:{sessionID}:{key}
//
// with prefix "oauth-login:" unless Config.KeyPrefix says otherwise. Every
// value is written with the TTL given to Put. Take is a single GETDEL, so
// two callbacks racing with one state value cannot both consume it.
//
// Example:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// SetEncryptor seals values with AES-GCM before they are sent, bound to
// the session id and key.
package valkey
