package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	stdhttputil "net/http/httputil"
	"net/url"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/httputil"
)

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, resp *expectation.HttpResponse) {
	if !sleep(r.Context(), resp.Delay.Duration()) {
		return
	}
	if err := writeResponse(w, r, resp); err != nil {
		h.log.Error("failed to write response", "path", r.URL.Path, "error", err)
	}
}

// writeResponse writes a canned response. The reason phrase cannot be set
// through net/http and is not sent.
func writeResponse(w http.ResponseWriter, r *http.Request, resp *expectation.HttpResponse) error {
	var body []byte
	if resp.Body != nil {
		b, err := resp.Body.Bytes()
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, err.Error())
			return err
		}
		body = b
	}

	header := w.Header()
	for _, e := range resp.Headers.Entries {
		for _, v := range e.Values {
			header.Add(e.Name.Value, v.Value)
		}
	}
	for _, e := range resp.Cookies.Entries {
		for _, v := range e.Values {
			http.SetCookie(w, &http.Cookie{Name: e.Name.Value, Value: v.Value})
		}
	}
	if header.Get("Content-Type") == "" && resp.Body != nil {
		if ct := resp.Body.DefaultContentType(); ct != "" {
			header.Set("Content-Type", ct)
		}
	}

	w.WriteHeader(resp.Status())
	if r.Method == http.MethodHead || len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// forward proxies the request to the target, replaying the body that was
// read for matching.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, body []byte, fwd *expectation.HttpForward) {
	if !sleep(r.Context(), fwd.Delay.Duration()) {
		return
	}
	target := &url.URL{Scheme: fwd.URLScheme(), Host: fwd.Address()}

	ctx, cancel := context.WithTimeout(r.Context(), h.forwardTimeout)
	defer cancel()
	r = r.WithContext(ctx)
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	proxy := &stdhttputil.ReverseProxy{
		Rewrite: func(pr *stdhttputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del(CorrelationHeader)
		},
		Transport: h.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.log.Warn("forward failed", "target", target.String(), "path", r.URL.Path, "error", err)
			httputil.WriteError(w, http.StatusBadGateway, httputil.CodeUpstream,
				fmt.Sprintf("forward to %s failed", target))
		},
	}
	proxy.ServeHTTP(w, r)
}

// fail takes over the connection, writes the configured raw bytes, and
// closes it without an HTTP response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, e *expectation.HttpError) {
	if !sleep(r.Context(), e.Delay.Duration()) {
		return
	}
	data, err := e.Bytes()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, err.Error())
		return
	}

	conn, buf, err := http.NewResponseController(w).Hijack()
	if err != nil {
		h.log.Warn("cannot take over connection for error action", "path", r.URL.Path, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "connection cannot be hijacked")
		return
	}
	defer func() { _ = conn.Close() }()

	if len(data) > 0 {
		if _, err := buf.Write(data); err == nil {
			_ = buf.Flush()
		}
	}
	h.log.Debug("connection dropped by error action",
		"path", r.URL.Path,
		"bytesWritten", len(data),
		"dropConnection", e.DropConnection,
	)
}

// callback posts the decoded request to the callback URL and relays the
// HttpResponse document it returns.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request, req *expectation.HttpRequest, cb *expectation.HttpCallback) {
	if !sleep(r.Context(), cb.Delay.Duration()) {
		return
	}
	resp, err := h.invokeCallback(r.Context(), req, cb.URL)
	if err != nil {
		h.log.Warn("callback failed", "url", cb.URL, "path", req.Path, "error", err)
		httputil.WriteError(w, http.StatusBadGateway, httputil.CodeUpstream, err.Error())
		return
	}
	h.respond(w, r, resp)
}

func (h *Handler) invokeCallback(ctx context.Context, req *expectation.HttpRequest, target string) (*expectation.HttpResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.callbackTimeout)
	defer cancel()
	out, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	out.Header.Set("Content-Type", "application/json")
	out.Header.Set(CorrelationHeader, req.CorrelationID)

	res, err := h.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", target, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("callback %s returned status %d", target, res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, h.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading callback response: %w", err)
	}
	var resp expectation.HttpResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("callback %s returned an invalid response: %w", target, err)
	}
	if err := (&expectation.Expectation{HttpResponse: &resp}).Validate(); err != nil {
		return nil, fmt.Errorf("callback %s returned an invalid response: %w", target, err)
	}
	return &resp, nil
}
