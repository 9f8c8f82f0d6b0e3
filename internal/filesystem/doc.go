/*
Package filesystem wraps the filesystem calls made by the directory item
source with retry logic for NFS stale file handle errors.

Media libraries are often NFS mounts. A directory listed while the server
replaces it can fail with ESTALE (errno 116) even though a second attempt
succeeds, so listing and stat calls are retried with exponential backoff:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

Only ESTALE triggers a retry. Every other error is returned immediately.

# Retry Behavior

The defaults are:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

Retries and final failures are counted in the
gallery_filesystem_retry_attempts_total and
gallery_filesystem_retry_failures_total metrics, labeled by operation.
*/
package filesystem
