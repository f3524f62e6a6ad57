package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/dispatcher"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/notify"
)

// maxBodySize caps intercepted request bodies.
const maxBodySize = 10 << 20

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".avif": true, ".bmp": true,
}

// Server is the larder HTTP front: it intercepts application traffic and
// exposes the control endpoints under the configured prefix.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatcher.Dispatcher
	hub        *notify.Hub
	upstream   *httputil.ReverseProxy
	mux        *http.ServeMux
}

// New creates a proxy Server wired with all dependencies.
func New(cfg *config.Config, d *dispatcher.Dispatcher, hub *notify.Hub) (*Server, error) {
	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		hub:        hub,
		mux:        http.NewServeMux(),
		upstream: &httputil.ReverseProxy{
			Director: func(req *http.Request) {
				req.URL.Scheme = target.Scheme
				req.URL.Host = target.Host
				req.Host = target.Host
			},
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				log.Printf("passthrough %s %s: %v", r.Method, r.URL.Path, err)
				writeJSONError(w, http.StatusBadGateway, "upstream unreachable")
			},
		},
	}

	hub.OnIdle(func() { d.ActivateIfIdle(context.Background()) })

	prefix := cfg.ControlPrefix
	s.mux.Handle(prefix+"ws", hub.WebSocket(d))
	s.mux.Handle(prefix+"events", hub.Events())
	s.mux.HandleFunc(prefix+"message", s.handleMessage)
	s.mux.HandleFunc(prefix+"sync", s.handleSync)
	s.mux.HandleFunc(prefix+"status", s.handleStatus)
	s.mux.HandleFunc("/", s.handleIntercept)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the proxy server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("larder listening on %s, upstream %s", s.cfg.Listen, s.cfg.Upstream)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher.State() != dispatcher.StateActive {
		s.upstream.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()
	if len(body) > maxBodySize {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req := buildRequest(r, body)
	resp, err := s.dispatcher.Handle(r.Context(), req)
	if errors.Is(err, dispatcher.ErrNotActive) {
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.upstream.ServeHTTP(w, r)
		return
	}
	if err != nil {
		log.Printf("%s %s: %v", r.Method, r.URL.RequestURI(), err)
		writeJSONError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// buildRequest captures an incoming request. Mode and destination come from
// the Fetch metadata headers, falling back to Accept and the file extension.
func buildRequest(r *http.Request, body []byte) *models.Request {
	mode := r.Header.Get("Sec-Fetch-Mode")
	if mode == "" && r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		mode = models.ModeNavigate
	}
	dest := r.Header.Get("Sec-Fetch-Dest")
	if dest == "" || dest == "empty" {
		if imageExts[strings.ToLower(path.Ext(r.URL.Path))] {
			dest = models.DestinationImage
		}
	}
	return &models.Request{
		Method:      r.Method,
		URL:         r.URL.RequestURI(),
		Header:      r.Header.Clone(),
		Body:        body,
		Mode:        mode,
		Destination: dest,
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var msg models.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid message")
		return
	}

	data, err := s.dispatcher.HandleMessage(r.Context(), msg)
	if errors.Is(err, dispatcher.ErrUnknownMessage) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	reply := models.Message{Type: models.MessageReply, RequestID: msg.RequestID, Data: data}
	if data == nil {
		reply.Data = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	res, err := s.dispatcher.Replay(r.Context())
	if err != nil {
		log.Printf("manual replay: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "replay failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, err := s.dispatcher.Status(r.Context())
	if err != nil {
		log.Printf("status: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"larder_error","code":%d}}`, message, code)
}
