// Package types defines functional configuration options
package types

// Option defines a configuration option function
type Option[T any] func(T)
