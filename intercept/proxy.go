package intercept

import (
	"io"
	"net/http"
	"net/url"

	"github.com/jonwraymond/offlinekit/observe"
)

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServeHTTP proxies r to the origin through the policy. The response
// carries SourceHeader.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out, err := e.outbound(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp, source, err := e.Handle(r.Context(), out)
	if err != nil {
		e.logger.Warn(r.Context(), "passthrough failed",
			observe.Field{Key: "method", Value: r.Method},
			observe.Field{Key: "error", Value: err.Error()},
		)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vv := range resp.Header {
		header[k] = append([]string(nil), vv...)
	}
	stripHop(header)
	header.Set(SourceHeader, string(source))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// outbound rewrites an incoming server request onto the origin.
func (e *Engine) outbound(r *http.Request) (*http.Request, error) {
	target := e.config.Origin.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	})
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	stripHop(out.Header)
	out.ContentLength = r.ContentLength
	return out, nil
}

func stripHop(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
