package ftpconn

import "fmt"

// ProtocolError is an unexpected reply to a command.
type ProtocolError struct {
	Command  string
	Response string
	Code     int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsPermanent reports a 5xx reply, e.g. an unsupported command.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}
