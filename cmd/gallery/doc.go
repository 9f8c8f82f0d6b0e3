// Command gallery indexes a media directory and serves incrementally
// loaded media lists.
//
// # Commands
//
//	gallery serve   HTTP API, Prometheus metrics, indexer and watcher
//	gallery list    load one collection and print it
//	gallery index   index the media directory once
//
// # Configuration
//
// Settings are read from --config (default ./gallery.toml, then
// ~/.config/gallery/config.toml), overridden by GALLERY_* environment
// variables and finally by flags. See package startup for the keys.
//
// # Graceful Shutdown
//
// serve handles SIGINT and SIGTERM:
//
//  1. Shut down the HTTP and metrics servers
//  2. Stop the indexer and watcher, close every open session
//  3. Stop the metrics collector
//  4. Close the database
package main
