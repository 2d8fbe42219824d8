package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the fetcher.
var (
	// ErrSSLRequired is returned when an include would downgrade an HTTPS request to HTTP.
	ErrSSLRequired = errors.New("ssl required")

	// ErrTooManyRedirects is returned when redirect chasing exceeds the configured hop limit.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// UpstreamError is returned when a fragment URL answers with a non-2xx status.
type UpstreamError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("url returned %d: %s", e.StatusCode, e.URL)
}

// Class returns the retry classification of the status code.
func (e *UpstreamError) Class() ErrorClass {
	switch {
	case e.StatusCode >= 500:
		return ErrorClassServer
	case e.StatusCode >= 400:
		return ErrorClassClient
	default:
		return ErrorClassRedirect
	}
}

// SSLError is returned when an include of a plain HTTP URL is attempted
// while serving an HTTPS request.
type SSLError struct {
	URL string
}

// Error implements the error interface.
func (e *SSLError) Error() string {
	return fmt.Sprintf("ssl required, cannot include: %s", e.URL)
}

// Unwrap makes errors.Is(err, ErrSSLRequired) hold.
func (e *SSLError) Unwrap() error {
	return ErrSSLRequired
}

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRedirect represents 3xx responses that were not chased.
	ErrorClassRedirect ErrorClass = "redirect"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classify categorizes an error for observability and retry decisions.
func classify(err error) ErrorClass {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Class()
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
