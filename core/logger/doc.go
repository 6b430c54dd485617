// Package logger is a standardized event logging framework for the
// interpreter and its SSH front end.
package logger
