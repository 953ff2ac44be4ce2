//go:build tinygo || !cgo

package preview

import "github.com/ashgrove-games/svo/svobuf"

func open(buf *svobuf.Buffer, cfg Config) (*Session, error) {
	return nil, ErrUnsupported
}
