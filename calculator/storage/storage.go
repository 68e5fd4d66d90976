// Package storage persists uploaded invoice documents outside the
// database. Documents are keyed by upload id so the extraction feedback
// loop can refer back to the original file.
package storage

import "io"

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Append(path string, data io.Reader) error

	Delete(path string) error

	Exists(path string) (bool, error)

	List(path string) ([]string, error)

	Size(path string) (int64, error)

	Usage() (UsageStats, error)

	Location() string
}
