// Package storage reads and writes the directory of Markdown tag files.
package storage

import "github.com/starford/logtags/internal/models"

// Provider is the interface for tag file operations. Paths are relative to
// the tag directory root and use the OS separator.
type Provider interface {
	// List returns metadata for every .md file under dir, sorted by path.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the tag file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the tag file at path.
	Write(path string, content []byte) error
	// Delete removes the tag file at path.
	Delete(path string) error
}
