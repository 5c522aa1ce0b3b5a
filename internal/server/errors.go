// Package server defines the validation errors surfaced to chat clients and
// the helpers that keep internal failures from leaking to them.
package server

import "github.com/cockroachdb/errors"

// Validation failures reported back to the originating connection as an
// error event. The sentinel text is the exact message the client displays,
// so treat it as part of the wire protocol.
var (
	ErrUsernameEmpty = errors.New("Username cannot be empty")
	ErrUsernameTaken = errors.New("Username is already taken")
	ErrNotJoined     = errors.New("You must join before sending messages")
	ErrMessageEmpty  = errors.New("Message cannot be empty")
)

// noticeSuperseded is queued for a connection whose username was claimed by
// a newer login, just before that connection is force-closed.
const noticeSuperseded = "Your session was taken over by a new connection"

// internalErrorMessage is the only text a client ever sees for a failure
// that is not one of the validation sentinels.
const internalErrorMessage = "Internal server error"

// clientMessage maps err to the text sent to the originating connection.
// Validation sentinels carry their own user-facing text, even when wrapped;
// everything else is masked behind a generic message.
func clientMessage(err error) string {
	for _, sentinel := range []error{ErrUsernameEmpty, ErrUsernameTaken, ErrNotJoined, ErrMessageEmpty} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return internalErrorMessage
}
