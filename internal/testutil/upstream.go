package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/unifiedui/chat-relay/internal/services/upstream"
)

// FakeUpstream replies to every request with Fragments, then Err (or the
// end of the stream when Err is nil).
type FakeUpstream struct {
	Fragments  []string
	Err        error
	ConnectErr error

	mu       sync.Mutex
	requests []*upstream.StreamRequest
}

// Stream records req and returns a scripted reader.
func (f *FakeUpstream) Stream(_ context.Context, req *upstream.StreamRequest) (upstream.StreamReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	return &fakeReader{fragments: append([]string(nil), f.Fragments...), err: f.Err}, nil
}

// Requests returns the requests received so far.
func (f *FakeUpstream) Requests() []*upstream.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*upstream.StreamRequest(nil), f.requests...)
}

type fakeReader struct {
	fragments []string
	err       error
}

func (r *fakeReader) Read() (*upstream.Chunk, error) {
	if len(r.fragments) > 0 {
		chunk := &upstream.Chunk{Content: r.fragments[0]}
		r.fragments = r.fragments[1:]
		return chunk, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, io.EOF
}

func (r *fakeReader) Close() error {
	return nil
}
