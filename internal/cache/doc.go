// Package cache owns the on-disk layout of the hub cache:
//
//	<CacheDir>/<types>--<org>--<name>/
//	  refs/<revision>                    # commit id last resolved for revision
//	  blobs/<contentId>                  # complete, immutable content
//	  blobs/<contentId>.incomplete       # partial transfer, append-only
//	  snapshots/<commitId>/<filename>    # relative symlink -> ../../blobs/<contentId>
//
// Roots are created lazily and never deleted except by the purge stale-commit
// policy. A blob only appears under its final name through a rename of the
// completed partial file, so readers never observe truncated content. The
// package also provides the optional per-blob locks and a read-only scanner
// used by diagnostics.
package cache
