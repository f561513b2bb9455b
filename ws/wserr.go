package ws

import "github.com/ehrma/signalcore/pkg"

// wsError pairs a wire error code with a human message, letting internal
// helpers (join-channel, media ops) return a single error value that the
// calling handler turns directly into an error frame.
type wsError struct {
	code    pkg.WSErrorCode
	message string
}

func (e *wsError) Error() string { return e.message }

func errWS(code pkg.WSErrorCode, message string) error {
	return &wsError{code: code, message: message}
}

// sendWSErr reports err to c as an error frame, using its wsError code when
// present and falling back to INTERNAL_ERROR for anything else.
func sendWSErr(c *Connection, err error) {
	if err == nil {
		return
	}
	if we, ok := err.(*wsError); ok {
		c.sendError(we.code, we.message)
		return
	}
	c.sendError(pkg.CodeInternalError, "internal error")
}
