package common

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"github.com/jgivc/acstdl/internal/entity"
)

var (
	ErrRunAlreadyStarted = fmt.Errorf("run has already started")
	ErrRunNotFound       = fmt.Errorf("run not found")
	ErrNoFeedsConfigured = fmt.Errorf("no feeds configured")
	ErrNoLinksFound      = fmt.Errorf("no mp3 links found")
	ErrFeedDisabled      = fmt.Errorf("feed is disabled")
)

// HTTPStatusError is returned when the server answered with a non-success status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// ContentError reports metadata the server sent but we could not understand.
type ContentError struct {
	Field string
	Value string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("malformed %s: %q", e.Field, e.Value)
}

const (
	FSErrorPermission = "permission"
	FSErrorNotFound   = "not_found"
	FSErrorIO         = "io"
)

type FilesystemError struct {
	Op   string
	Path string
	Kind string
	Err  error
}

func NewFilesystemError(op, path string, err error) *FilesystemError {
	kind := FSErrorIO
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = FSErrorPermission
	case errors.Is(err, fs.ErrNotExist):
		kind = FSErrorNotFound
	}

	return &FilesystemError{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("cannot %s %s (%s): %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

const (
	TagErrorUnsupportedFormat = "unsupported_format"
	TagErrorWriteFailure      = "write_failure"
)

type TaggingError struct {
	Path string
	Kind string
	Err  error
}

func (e *TaggingError) Error() string {
	return fmt.Sprintf("cannot tag %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *TaggingError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a network error to the kind recorded in probe results and metrics.
func ClassifyError(err error) entity.ErrorKind {
	if err == nil {
		return entity.ErrorKindNone
	}

	var (
		statusErr   *HTTPStatusError
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidCert x509.CertificateInvalidError
		netErr      net.Error
	)

	switch {
	case errors.As(err, &statusErr):
		return entity.ErrorKindHTTP
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return entity.ErrorKindTimeout
		}
		return entity.ErrorKindDNS
	case errors.As(err, &certErr), errors.As(err, &recordErr), errors.As(err, &unknownAuth),
		errors.As(err, &hostErr), errors.As(err, &invalidCert):
		return entity.ErrorKindTLS
	case errors.Is(err, context.DeadlineExceeded):
		return entity.ErrorKindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return entity.ErrorKindTimeout
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return entity.ErrorKindConnectionReset
	}

	return entity.ErrorKindOther
}
