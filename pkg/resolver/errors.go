package resolver

import "fmt"

// Native resolution error codes, the positive space the query engine
// reports. CodeExtraction is local to this package: it marks a success
// report that yielded no usable address for the requested family.
const (
	CodeNone         = 0
	CodeFormat       = 1
	CodeServerFailed = 2
	CodeNotExist     = 3
	CodeNotImpl      = 4
	CodeRefused      = 5
	CodeTruncated    = 65
	CodeUnknown      = 66
	CodeTimeout      = 67
	CodeShutdown     = 68
	CodeCanceled     = 69
	CodeNoData       = 70

	CodeExtraction = -1
)

var (
	// ErrLoopNotRunning is returned when a lookup is issued while the
	// bound event loop is not dispatching.
	ErrLoopNotRunning = fmt.Errorf("event loop not running")
	// ErrBackendClosed is returned when a query is issued against a
	// backend that has been freed.
	ErrBackendClosed = fmt.Errorf("resolver backend closed")
)

// Strerror renders a resolution error code as a human-readable message,
// mirroring the classic evdns table.
func Strerror(code int) string {
	switch code {
	case CodeNone:
		return "no error"
	case CodeFormat:
		return "misformatted query"
	case CodeServerFailed:
		return "server failed"
	case CodeNotExist:
		return "name does not exist"
	case CodeNotImpl:
		return "query not implemented"
	case CodeRefused:
		return "refused to answer"
	case CodeTruncated:
		return "reply truncated or ill-formed"
	case CodeUnknown:
		return "unknown"
	case CodeTimeout:
		return "request timed out"
	case CodeShutdown:
		return "name server shut down"
	case CodeCanceled:
		return "request canceled"
	case CodeNoData:
		return "no records in the reply"
	default:
		return "[unknown error code]"
	}
}

// DNSError is the terminal error of a failed lookup. Code carries the
// native error code for programmatic inspection.
type DNSError struct {
	Code    int
	Message string
}

func (e *DNSError) Error() string {
	return fmt.Sprintf("dns: %s (code %d)", e.Message, e.Code)
}

func newDNSError(code int) *DNSError {
	return &DNSError{Code: code, Message: Strerror(code)}
}
