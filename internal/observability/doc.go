// Package observability builds the process logger and the Prometheus
// collectors shared by the authentication gate and the shop services.
package observability
