// Package respond turns retrieved passages into the answer text returned to
// callers, either as raw attributed excerpts or through a language model.
package respond

import (
	"errors"
	"fmt"
)

// User-facing messages. These are the only strings callers see for
// recoverable failures.
const (
	NoInformationMessage = "I couldn't find any information about that in the Game of Thrones books."
	EmptyQuestionMessage = "Please ask a question about Game of Thrones."
	ErrorMessage         = "I encountered an error while searching for information."
	UnavailableMessage   = "I'm having trouble accessing my knowledge base right now. Please try again later."
	UnexpectedMessage    = "An unexpected error occurred."

	TruncationMarker = "... (Response truncated for readability)"
)

// ErrGeneration wraps every language model failure. It is logged, never
// shown to callers.
var ErrGeneration = errors.New("generation failed")

// InitializingMessage is returned while the index is still being built.
func InitializingMessage(question string) string {
	return fmt.Sprintf("I'm searching for information about '%s'. Please try asking again in a moment.", question)
}
