// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the OpenTelemetry and Prometheus exporters.
package internaldefs
