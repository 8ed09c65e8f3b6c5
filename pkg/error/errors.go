package error

import "net/http"

// GenericError is implemented by all typed errors so the recovery middleware
// can map them to an HTTP response.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type QuotaExceededError string

func (err QuotaExceededError) Error() string {
	return string(err)
}

func (err QuotaExceededError) ErrCode() string {
	return "QUOTA_EXCEEDED"
}

func (err QuotaExceededError) StatusCode() int {
	return http.StatusPaymentRequired
}

type ConflictError string

func (err ConflictError) Error() string {
	return string(err)
}

func (err ConflictError) ErrCode() string {
	return "CONFLICT_ERROR"
}

func (err ConflictError) StatusCode() int {
	return http.StatusConflict
}
