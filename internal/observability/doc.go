// Package observability provides structured logging and Prometheus metrics
// for the retrieval engine.
//
// Loggers are zap-based and pick up the chi request ID from the request
// context. Metrics cover every search path, the embedding provider and its
// cache, entity extraction, circuit breaker state, and HTTP traffic.
package observability
