package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Kind classifies a failed download.
type Kind int

const (
	KindOther Kind = iota
	KindBadConnection
	KindUnauthorized
	KindNoSuchSchedule
	KindMalformedCalendar
	KindMalformedSchedule
)

func (k Kind) String() string {
	switch k {
	case KindBadConnection:
		return "bad connection"
	case KindUnauthorized:
		return "unauthorized"
	case KindNoSuchSchedule:
		return "no such schedule"
	case KindMalformedCalendar:
		return "malformed calendar"
	case KindMalformedSchedule:
		return "malformed schedule"
	default:
		return "other"
	}
}

// DownloadError is returned by Calendar and Schedule. Err is the cause: a
// *StatusError, a transport error or a *calendar.ParseError.
type DownloadError struct {
	Kind Kind
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Err == nil {
		return "download: " + e.Kind.String()
	}
	return fmt.Sprintf("download: %s: %v", e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first DownloadError in err's chain, or
// KindOther.
func KindOf(err error) Kind {
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindOther
}

// StatusError is a non-OK HTTP response with no cached body to fall back on.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "unexpected status: " + e.Status }

// classify maps a fetch failure onto a Kind. notFound is the kind a 404
// means for the document being fetched.
func classify(err error, notFound Kind) *DownloadError {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &DownloadError{Kind: KindUnauthorized, Err: err}
		case http.StatusNotFound:
			return &DownloadError{Kind: notFound, Err: err}
		}
		return &DownloadError{Kind: KindOther, Err: err}
	}

	var (
		netErr net.Error
		urlErr *url.Error
	)
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return &DownloadError{Kind: KindBadConnection, Err: err}
	}
	return &DownloadError{Kind: KindOther, Err: err}
}
