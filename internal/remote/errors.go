package remote

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotSignedIn reports that no remote session is available.
	ErrNotSignedIn = errors.New("not signed in to remote storage")
	// ErrExists is returned by Upload with overwrite=false when the object already exists.
	ErrExists = errors.New("remote object already exists")
)

// ErrorKind classifies remote failures.
type ErrorKind string

const (
	ErrorTimeout ErrorKind = "timeout"
	ErrorAuth    ErrorKind = "auth"
	ErrorPath    ErrorKind = "path"
	ErrorNetwork ErrorKind = "network"
	ErrorOther   ErrorKind = "other"
)

// Error is a classified remote failure.
type Error struct {
	Kind   ErrorKind
	Op     string
	Target string
	Output string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s %s failed (%s)", e.Op, e.Target, e.Kind)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of a classified error, ErrorOther otherwise.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrorOther
}

func classifyRemoteError(op, target string, err error, output []byte) *Error {
	text := strings.TrimSpace(string(output))
	return &Error{
		Kind:   detectRemoteErrorKind(strings.ToLower(text)),
		Op:     op,
		Target: target,
		Output: text,
		Err:    err,
	}
}

func detectRemoteErrorKind(text string) ErrorKind {
	switch {
	case containsAny(text,
		"directory not found",
		"file not found",
		"object not found",
		"couldn't find root",
		"path not found"):
		return ErrorPath
	case containsAny(text,
		"failed to create file system",
		"couldn't find configuration section",
		"not found in config file",
		"error reading section",
		"token expired",
		"invalid_grant",
		"401 unauthorized",
		"403 forbidden",
		"access denied",
		"permission denied"):
		return ErrorAuth
	case containsAny(text,
		"dial tcp",
		"connection refused",
		"network is unreachable",
		"host is down",
		"no such host",
		"i/o timeout"):
		return ErrorNetwork
	default:
		return ErrorOther
	}
}

func containsAny(text string, substrings ...string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
