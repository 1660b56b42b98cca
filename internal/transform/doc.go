// Package transform holds the per-message validation/enrichment hooks the
// processor applies between source and sink.
package transform
