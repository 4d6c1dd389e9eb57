// Package testutil provides testing utilities for the oauth-login module: a
// controllable clock, a fake identity provider server that captures the
// requests it receives, and account fixtures.
package testutil
