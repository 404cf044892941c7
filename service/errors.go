package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"syscall"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool    { return true }
func (t *errTmp) Unwrap() error     { return t.error }
func MakeTemporary(err error) error { return &errTmp{err} }

type errFatalIf interface{ Fatal() bool }
type errFatal struct{ error }

func (t errFatal) Fatal() bool    { return true }
func (t *errFatal) Unwrap() error { return t.error }
func MakeFatal(err error) error   { return &errFatal{err} }

// temporaryErrnos are the system errors a remote server may recover from
var temporaryErrnos = []syscall.Errno{
	syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED,
	syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE,
}

// Temporary inspects the error trace and returns whether the error is transient:
// explicitly marked, network timeout, recoverable system error, canceled or deadline exceeded
func Temporary(err error) bool {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		for _, e := range temporaryErrnos {
			if errno == e {
				return true
			}
		}
	}

	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// TemporaryStatus returns whether the http status may change if the request is sent again later
func TemporaryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Fatal inspects the error and returns whether it's a fatal error
func Fatal(err error) bool {
	var tmp errFatalIf
	if errors.As(err, &tmp) {
		return tmp.Fatal()
	}
	return false
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the fatal error then to the temporary
// else, priority to no error, then to the temporary and finally to the fatal error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	for _, newErr := range newErrs {
		switch {
		case newErr == nil:
			if !priorityToError {
				return nil
			}
		case err == nil:
			err = newErr
		case priorityToError != Temporary(err):
			err = fmt.Errorf("%w\n %v", err, newErr)
		default:
			err = fmt.Errorf("%w\n %v", newErr, err)
		}
	}
	return err
}
