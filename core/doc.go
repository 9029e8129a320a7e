// Package core holds the shared vocabulary of the query layer: the caller's
// AuthContext, structured predicates and query options, the closed error
// taxonomy with its normalizer and retry helper, audit stamps, and the
// layered configuration. It has no datastore or transport dependencies.
package core
