// Package shared holds utilities used across the codebase that belong
// to no specific domain or layer. It currently carries testutil, the
// shared slog test harness; it must never grow business logic or
// dependencies on other internal packages.
package shared
