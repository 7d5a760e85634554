package objectstore

import (
	"errors"
	"net/http"

	"github.com/aws/smithy-go"
)

// ErrorKind classifies a gateway failure the way spec §4.1 requires:
// callers branch on kind rather than on SDK-specific error types.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindNotFound
	ErrKindTransient
	ErrKindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindTransient:
		return "transient"
	case ErrKindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifyError inspects an AWS SDK error returned by the s3 client and
// assigns it a Kind. NoSuchKey/NotFound map to NotFound; 5xx and throttling
// codes map to Transient; everything else (access denied, malformed
// request) is Permanent.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrKindNotFound
		case "ThrottlingException", "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return ErrKindTransient
		}
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		switch code := httpErr.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return ErrKindNotFound
		case code >= 500:
			return ErrKindTransient
		}
	}

	return ErrKindPermanent
}
