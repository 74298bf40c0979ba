// Package configentry stores the bridge's config entries, one per SyncSign
// account.
//
// An entry holds the account's API key and a title derived from the
// account email. Keys are unique: the same account cannot be added twice.
// Entries are persisted in SQLite; the key is never serialised to JSON.
package configentry
