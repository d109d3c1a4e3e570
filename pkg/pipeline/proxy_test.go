package pipeline

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/pires/go-proxyproto"
)

func TestProxyDetector(t *testing.T) {
	src := &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 41000}
	dst := &net.TCPAddr{IP: net.ParseIP("10.9.8.7"), Port: 6651}

	v2, err := proxyproto.HeaderProxyFromAddrs(2, src, dst).Format()
	if err != nil {
		t.Fatalf("format v2 header: %v", err)
	}

	payload := frameBytes(16)

	tests := []struct {
		name       string
		stream     []byte
		wantHeader bool
		wantSource string
	}{
		{
			name:   "no header passes bytes through",
			stream: payload,
		},
		{
			name:       "v1 header is consumed",
			stream:     append([]byte("PROXY TCP4 192.168.0.1 192.168.0.11 56324 6650\r\n"), payload...),
			wantHeader: true,
			wantSource: "192.168.0.1:56324",
		},
		{
			name:       "v2 header is consumed",
			stream:     append(v2, payload...),
			wantHeader: true,
			wantSource: src.String(),
		},
		{
			name:   "empty stream",
			stream: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reported *proxyproto.Header
			d := NewProxyDetector(bytes.NewReader(tt.stream), func(h *proxyproto.Header) { reported = h })

			got, err := io.ReadAll(d)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}

			want := tt.stream
			if tt.wantHeader {
				want = payload
			}
			if !bytes.Equal(got, want) {
				t.Errorf("read %d bytes, want %d unchanged bytes", len(got), len(want))
			}

			if (d.Header() != nil) != tt.wantHeader {
				t.Fatalf("Header() = %v, want header: %v", d.Header(), tt.wantHeader)
			}
			if reported != d.Header() {
				t.Error("callback did not receive the detected header")
			}
			if tt.wantHeader && d.Header().SourceAddr.String() != tt.wantSource {
				t.Errorf("source = %s, want %s", d.Header().SourceAddr, tt.wantSource)
			}
		})
	}
}

func TestProxyDetector_FramesAfterHeader(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("PROXY TCP4 192.168.0.1 192.168.0.11 56324 6650\r\n")
	enc := NewFrameEncoder(&stream, false)
	_ = enc.WriteFrame([]byte("hello"))

	d := NewFrameDecoder(NewProxyDetector(&stream, nil), 1024)
	got, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Next() = %q, want %q", got, "hello")
	}
}
