// Package internaldefs holds the metric names, descriptions and bucket
// helpers shared by the Prometheus and OpenTelemetry exporters.
package internaldefs
