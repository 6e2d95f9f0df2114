// Package httpmw provides HTTP middleware for the report API.
//
// httpserver.NewHandler composes them outermost first: security headers,
// recover, request ID, OTEL tracing, trace headers, metrics, request
// logger, and then the chi router with route annotation and access log.
// Query strings and headers other than the request ID are kept out of logs.
package httpmw
