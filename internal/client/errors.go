package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/models"
)

// ErrorKind partitions fetch failures for the scheduler: transient errors
// are retried inside the client, permanent ones propagate immediately and
// decode errors mark the task failed with prior metric values retained.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindDecode:
		return "decode"
	default:
		return "transient"
	}
}

// FetchError is a classified task failure with zone/dataset context.
type FetchError struct {
	Kind    ErrorKind
	Zone    string
	Dataset models.Dataset
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch error for zone %q dataset %q: %v", e.Kind, e.Zone, e.Dataset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a classified transient failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindTransient
}

// IsPermanent reports whether err is a classified permanent failure.
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindPermanent
}

var permanentMarkers = []string{
	"authentication error",
	"unable to authenticate",
	"unauthorized",
	"forbidden",
	"invalid api token",
	"zone not found",
	"unknown zone",
	"does not have access",
	"must not have a subselection",
	"unknown field",
	"non-200 status code: 400",
	"non-200 status code: 401",
	"non-200 status code: 403",
}

var transientMarkers = []string{
	"non-200 status code: 429",
	"non-200 status code: 5",
	"rate limit",
	"connection refused",
	"connection reset",
	"temporary",
	"timeout",
	"EOF",
}

// classify buckets a raw transport/GraphQL error. Unrecognized errors are
// treated as transient so the bounded retry gets a chance; the GraphQL API
// reports auth and query validation failures with stable messages matched
// here.
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var nErr net.Error
	if errors.As(err, &nErr) && nErr.Timeout() {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return KindPermanent
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return KindTransient
		}
	}
	return KindTransient
}
