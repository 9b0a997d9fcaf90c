package natsx

import (
	"cmp"
	"os"

	"github.com/nats-io/nats.go"
)

// Connect opens a connection to url, falling back to the NATS_URL environment variable
// and then to nats.DefaultURL. Without options the connection is named "roost" and
// uses compression.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name("roost"), nats.Compression(true))
	}
	return nats.Connect(cmp.Or(url, os.Getenv("NATS_URL"), nats.DefaultURL), opts...)
}

// Header converts flat transport headers into a NATS header.
func Header(h map[string]string) nats.Header {
	out := nats.Header{}
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

// Flatten converts a NATS header into flat transport headers, keeping the first value.
func Flatten(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
