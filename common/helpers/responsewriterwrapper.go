package helpers

import (
	"encoding/json"
	"errors"
	"net/http"
)

/*
wraps a real ResponseWriter and remembers the status code that was sent, so it can be logged or
counted after the handler returns
*/
type StatusRecordingWriter struct {
	http.ResponseWriter
	StatusCode int
}

func NewStatusRecordingWriter(w http.ResponseWriter) *StatusRecordingWriter {
	return &StatusRecordingWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (w *StatusRecordingWriter) WriteHeader(statusCode int) {
	w.StatusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

type MockResponseWriterState struct {
	LastWrittenBytes  []byte
	WrittenStatusCode *int
	Headers           http.Header
}

type MockResponseWriter struct {
	State *MockResponseWriterState
}

func NewMockResponseWriter() MockResponseWriter {
	return MockResponseWriter{
		State: &MockResponseWriterState{Headers: http.Header{}},
	}
}

func (mock MockResponseWriter) Header() http.Header {
	return mock.State.Headers
}

func (mock MockResponseWriter) Write(msg []byte) (int, error) {
	mock.State.LastWrittenBytes = append(mock.State.LastWrittenBytes, msg...)
	return len(msg), nil
}

/*
convenience function to get a string of the written bytes
*/
func (mock MockResponseWriter) LastWrittenString() string {
	return string(mock.State.LastWrittenBytes)
}

/*
convenience function to parse the written content from json into a generic map
*/
func (mock MockResponseWriter) LastWrittenJson() (map[string]interface{}, error) {
	var rtn map[string]interface{}

	if len(mock.State.LastWrittenBytes) == 0 {
		return nil, errors.New("No content has yet been written")
	}
	marshalErr := json.Unmarshal(mock.State.LastWrittenBytes, &rtn)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return rtn, nil
}

/*
parse the written content into the given value
*/
func (mock MockResponseWriter) LastWrittenInto(target interface{}) error {
	if len(mock.State.LastWrittenBytes) == 0 {
		return errors.New("No content has yet been written")
	}
	return json.Unmarshal(mock.State.LastWrittenBytes, target)
}

func (mock MockResponseWriter) WriteHeader(statusCode int) {
	statusCodeCopy := statusCode
	mock.State.WrittenStatusCode = &statusCodeCopy
}

/*
return a boolean indicating whether WriteHeader has been called
*/
func (mock MockResponseWriter) HeaderOutput() bool {
	return mock.State.WrittenStatusCode != nil
}

/*
the status code a real server would have sent, i.e. 200 if WriteHeader was never called
*/
func (mock MockResponseWriter) StatusCode() int {
	if mock.State.WrittenStatusCode == nil {
		return http.StatusOK
	}
	return *mock.State.WrittenStatusCode
}
