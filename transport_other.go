//go:build !linux

package itla

// DefaultOpener opens ports through go.bug.st/serial outside Linux.
var DefaultOpener Opener = PortableOpener

var termiosOpener Opener
