// Package server exposes the local cache over HTTP. It builds a Fiber
// application that answers hub-style resolve URLs by running the download
// pipeline (coalesced per file with singleflight) and streaming the snapshot
// from disk, plus the diagnostic routes under /-/. Dependencies are passed in
// explicitly so tests can substitute the Fetcher.
package server
