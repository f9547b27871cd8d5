package queue

import "errors"

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job is dead-lettered at once.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
