// Package sqlite stores accounts in a SQLite database using the pure-Go
// modernc.org/sqlite driver.
//
// The schema is embedded and migrated on Open. Usernames and emails compare
// case-insensitively (COLLATE NOCASE), and a partial unique index keeps a
// provider identity linked to at most one account.
//
//	store, err := sqlite.Open(ctx, "/var/lib/oauth-login/accounts.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// Session values are not kept here; pair the store with the memory or
// valkey session store.
package sqlite
