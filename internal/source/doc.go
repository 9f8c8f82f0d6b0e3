// Package source provides item sources that read the filesystem directly
// and a Router that sends each filter to the source able to serve it.
//
// Directory serves the Directory and File scopes, which name folders and
// paths that may never have been indexed. Everything else goes to the
// library database.
package source
