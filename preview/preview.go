// Package preview is a debug collaborator for the opaque SVO buffer
// handle described in spec.md §1: it proves the buffer is well-formed
// on a GPU by binding it as a storage buffer and running a placeholder
// compute pass, without pulling any actual rendering effect (lighting,
// shading, texturing) into the core. Directly adapted from
// gsdfaux/gsdfaux.go's cgo-gated GPU bring-up split: a cgo build opens
// a real GL context, a non-cgo/tinygo build reports ErrUnsupported.
package preview

import (
	"errors"

	"github.com/ashgrove-games/svo/svobuf"
)

// ErrUnsupported is returned by Open on a build without cgo (or under
// tinygo), where no GL context can be created.
var ErrUnsupported = errors.New("preview: GPU preview requires cgo")

// Config controls the placeholder preview pass.
type Config struct {
	// WorkgroupInvocations sizes the compute dispatch; zero selects a
	// small conservative default. Mirrors RenderConfig's guessed
	// worker-count reasoning in gsdfaux.go.
	WorkgroupInvocations int
	Silent               bool
}

// Session holds the GPU resources opened by Open. Close releases them;
// calling Close more than once is a no-op, mirroring gsdfaux.ui's
// defer term() release-path discipline at the Session boundary instead
// of a single function body.
type Session struct {
	closed bool
	close  func() error
}

// Close releases the GL context and any buffers Open created. Safe to
// call multiple times and safe to defer immediately after a successful
// Open.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open binds buf's backing bytes as a GPU storage buffer and runs one
// placeholder compute dispatch over it, proving the handle round-trips
// through a real GL driver. The returned Session must be Closed by the
// caller.
func Open(buf *svobuf.Buffer, cfg Config) (*Session, error) {
	return open(buf, cfg)
}
