// Package download runs the single-file pipeline (resolve, lay out the cache
// root, reconcile refs and partial files, transfer, install) and the shard
// aggregator that drives it once per part of a multi-file asset. Failures are
// returned as typed Results and never escape as panics.
package download
