// Package resolver turns (repository, filename, revision) into the content id,
// commit id and size that key the local cache. Two implementations talk to a
// hub endpoint: PathsInfoResolver uses the JSON paths-info API and
// PointerResolver reads the raw file, understanding Git-LFS pointers. Every
// failure is a *ResolutionError whose Reason callers branch on; nothing here
// retries.
package resolver
