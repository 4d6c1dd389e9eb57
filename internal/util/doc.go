// Package util holds small helpers shared by the login packages: log-safe and
// length-limited string truncation, and IP classification for validating
// provider endpoint URLs.
package util
