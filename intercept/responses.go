package intercept

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// OfflineBody is the JSON body of the synthesized 503.
type OfflineBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var offlineJSON, _ = json.Marshal(OfflineBody{
	Error:   "Offline",
	Message: "This feature requires an internet connection",
})

func notFound(req *http.Request) *http.Response {
	return synthesize(req, http.StatusNotFound, "text/plain; charset=utf-8", []byte("File not found"))
}

func offline(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "application/json", offlineJSON)
}

func synthesize(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
