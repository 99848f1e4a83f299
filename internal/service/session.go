package service

import "github.com/google/uuid"

// Session is the identity every operation acts on behalf of. Handlers build it
// per request from the users table, which is the only source of the admin flag.
type Session struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Anonymous is the session of a visitor who is not signed in
var Anonymous = Session{}

// Authenticated reports whether the session belongs to a signed-in user
func (s Session) Authenticated() bool {
	return s.UserID != uuid.Nil
}

func (s Session) viewerID() uuid.NullUUID {
	return uuid.NullUUID{UUID: s.UserID, Valid: s.Authenticated()}
}

func requireAuth(s Session) error {
	if !s.Authenticated() {
		return permissionError("Please sign in first")
	}
	return nil
}
