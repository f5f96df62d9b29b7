// Package store provides persistent storage for bing-cell using SQLite.
//
// # Data Models
//
//   - Room: a user's chat room and the remote conversation it is bound to
//     (conversation id, signature, client id and the count of user messages
//     already sent in that conversation)
//   - RoomMessage: one user or assistant entry in a room's history
//
// # Session state
//
// UpdateRoomSession writes a freshly negotiated conversation and resets the
// message count to zero. IncrementUserMessages is the only way the count
// grows; the count is never decremented except by replacing or clearing the
// session.
//
// # Implementations
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) with WAL mode and
// foreign keys enabled; the schema is created on open. MockStore keeps
// everything in memory for tests.
//
// # Error Handling
//
// Lookups and updates of a missing room return ErrNotFound. Other failures
// are wrapped with the operation that failed.
package store
