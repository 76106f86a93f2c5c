// Package mongostore keeps chat messages in a MongoDB collection and feeds
// realtime events from a change stream.
//
// Documents are stored as {_id, text, author, created_at, seq} with a uuid
// string _id and an ObjectID seq. List sorts by created_at then seq, so
// messages created in the same millisecond keep insertion order within a
// process. Change streams require a replica
// set, so a standalone mongod serves List, Create and Delete but Subscribe
// will fail.
package mongostore
