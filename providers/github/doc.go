// Package github implements the GitHub OAuth App adapter.
//
// The adapter uses the fixed GitHub endpoints from golang.org/x/oauth2/github
// and maps https://api.github.com/user onto a providers.Identity:
//
//	id    -> ProviderUserID
//	login -> Username
//	name  -> DisplayName
//	email -> Email (primary verified /user/emails entry when private)
//
// Example:
//
//	p, err := github.New(providers.ConfigFromOptions(map[string]string{
//	    "clientId":     "your-client-id",
//	    "clientSecret": "your-client-secret",
//	}, "https://app.example.com/login/callback"))
package github
