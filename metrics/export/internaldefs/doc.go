// Package internaldefs defines the storefront metric families shared by the
// Prometheus and OTel exporters.
//
// Engine counters are grouped into families with one label each, so both
// exporters publish the same names, label keys and bucket bounds.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
