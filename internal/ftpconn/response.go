package ftpconn

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is one (possibly multi-line) server reply.
type Response struct {
	Code    int
	Message string
	Lines   []string
}

func (r *Response) Is1xx() bool { return r.Code >= 100 && r.Code < 200 }
func (r *Response) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }

func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// readResponse reads a reply. Multi-line replies start with "ddd-" and end
// with a line starting "ddd ".
func readResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 3 {
		return nil, fmt.Errorf("invalid response line: %q", line)
	}
	code, err := strconv.Atoi(line[0:3])
	if err != nil {
		return nil, fmt.Errorf("invalid response code: %q", line[0:3])
	}
	lines := []string{line}
	if len(line) == 3 {
		return &Response{Code: code, Lines: lines}, nil
	}
	if line[3] == ' ' {
		return &Response{Code: code, Message: line[4:], Lines: lines}, nil
	}
	if line[3] != '-' {
		return nil, fmt.Errorf("invalid response format: %q", line)
	}

	codeStr := line[0:3]
	for {
		next, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unexpected EOF reading response")
			}
			return nil, err
		}
		next = strings.TrimRight(next, "\r\n")
		lines = append(lines, next)
		if len(next) >= 4 && next[0:3] == codeStr && next[3] == ' ' {
			break
		}
	}

	var messageLines []string
	for _, l := range lines {
		if len(l) >= 4 && l[0:3] == codeStr && (l[3] == '-' || l[3] == ' ') {
			messageLines = append(messageLines, l[4:])
		} else {
			messageLines = append(messageLines, strings.TrimSpace(l))
		}
	}
	return &Response{
		Code:    code,
		Message: strings.Join(messageLines, "\n"),
		Lines:   lines,
	}, nil
}
