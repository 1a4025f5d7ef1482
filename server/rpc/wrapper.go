package rpc

import (
	"bytes"
	"io"
	"net/rpc/jsonrpc"
)

// rpcRequest adapts one request body into the connection expected by
// jsonrpc.ServeConn. Responses are buffered until the body is consumed.
type rpcRequest struct {
	r  io.Reader
	rw *bytes.Buffer
}

func newRequest(r io.Reader) *rpcRequest {
	return &rpcRequest{r: r, rw: &bytes.Buffer{}}
}

func (r *rpcRequest) Read(p []byte) (int, error)  { return r.r.Read(p) }
func (r *rpcRequest) Write(p []byte) (int, error) { return r.rw.Write(p) }
func (r *rpcRequest) Close() error                { return nil }

// Call serves every call in the body and returns the encoded responses.
// ServeConn returns once the body hits EOF and pending calls are done.
func (r *rpcRequest) Call() io.Reader {
	jsonrpc.ServeConn(r)
	return r.rw
}
