// Package audit keeps the trail of operator actions on the bridge: accounts
// added or removed and display updates, with who asked and from where.
//
// Records are written by a Recorder off the request path. When its buffer
// is full a record is dropped rather than delaying the caller.
package audit
