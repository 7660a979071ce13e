package helpers

import "io"

type MockReadCloserState struct {
	WasClosed bool
	Offset    int
}

/*
request body for handler tests. Hands out DataToRead and then EOF, and remembers whether it was closed
*/
type MockReadCloser struct {
	State      *MockReadCloserState
	DataToRead []byte
}

func NewMockReadCloser(data []byte) MockReadCloser {
	return MockReadCloser{
		State:      &MockReadCloserState{},
		DataToRead: data,
	}
}

func (c MockReadCloser) Close() error {
	c.State.WasClosed = true
	return nil
}

func (c MockReadCloser) Read(p []byte) (n int, err error) {
	if c.State.WasClosed {
		return 0, io.ErrClosedPipe
	}
	if c.State.Offset >= len(c.DataToRead) {
		return 0, io.EOF
	}
	n = copy(p, c.DataToRead[c.State.Offset:])
	c.State.Offset += n
	return n, nil
}
