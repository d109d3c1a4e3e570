package pipeline

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/pires/go-proxyproto"
)

// ProxyDetector looks for a PROXY protocol (v1 or v2) header at the start
// of a stream. A header is consumed and reported; any other bytes are
// passed through unchanged.
type ProxyDetector struct {
	br       *bufio.Reader
	onHeader func(*proxyproto.Header)

	once   sync.Once
	header *proxyproto.Header
	err    error
}

// NewProxyDetector wraps r. onHeader, if not nil, is called once when a
// header is found.
func NewProxyDetector(r io.Reader, onHeader func(*proxyproto.Header)) *ProxyDetector {
	return &ProxyDetector{
		br:       bufio.NewReader(r),
		onHeader: onHeader,
	}
}

func (d *ProxyDetector) detect() {
	header, err := proxyproto.Read(d.br)
	switch {
	case err == nil:
		d.header = header
		if d.onHeader != nil {
			d.onHeader(header)
		}
	case errors.Is(err, proxyproto.ErrNoProxyProtocol):
	default:
		d.err = err
	}
}

// Read detects the header on first use and then reads the remaining stream.
func (d *ProxyDetector) Read(p []byte) (int, error) {
	d.once.Do(d.detect)
	if d.err != nil {
		return 0, d.err
	}
	return d.br.Read(p)
}

// Header returns the detected header, or nil if none was present or
// detection has not run yet.
func (d *ProxyDetector) Header() *proxyproto.Header {
	return d.header
}
