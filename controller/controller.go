package controller

import (
	"github.com/attunefm/attune/directory"
	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/session"
)

// Controller serves the local HTTP surface. Host is nil when the process
// runs as a bare directory server, Registry is nil when it doesn't serve
// the directory.
type Controller struct {
	Host     *session.Host
	Registry *directory.Registry
	History  *history.Ring
	CacheDir string
}
