// Package transfer moves the bytes of one remote file into a partial file on
// disk. The HTTP transport issues a single ranged GET per call, and the Engine
// wraps it with append-only sink handling, throttled progress reporting,
// context cancellation and a final byte-count check against the resolved size.
package transfer
