/*
Package workers sizes worker pools in containerized environments.

runtime.NumCPU reports the host's CPUs, while GOMAXPROCS follows the
container's CPU limit. Pool sizes here are derived from GOMAXPROCS:

	// Directory walk: I/O bound, at most 3 workers unless INDEX_WORKERS is set
	n := workers.ForIO("INDEX_WORKERS", 3)

An explicit environment override is used as given and is not capped.
*/
package workers
