// Package uuid generates the identifiers used for blob
// references, object names and temporary paths
package uuid

import (
	google_uuid "github.com/google/uuid"
)

// contentSpace is the name-based namespace for FromContent
var contentSpace = google_uuid.NewSHA1(google_uuid.NameSpaceURL, []byte("tenantkv:content"))

// MustUUID returns a random identifier. It panics if
// the random source fails.
func MustUUID() string {
	return google_uuid.Must(google_uuid.NewRandom()).String()
}

// FromContent returns an identifier derived from data.
// Identical data always yields the same identifier.
func FromContent(data []byte) string {
	return google_uuid.NewSHA1(contentSpace, data).String()
}
