// Package errors defines the error types used across the messaging
// connector. The root swm package re-exports these for public use.
package errors
