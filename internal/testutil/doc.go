// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing core pipeline objects (turns, context
// bundles) and asserting behaviors. These helpers are intentionally minimal
// and are not intended for production usage.
package testutil
