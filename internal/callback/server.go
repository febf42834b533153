// Package callback receives the provider redirect on a local listener. It
// stands in for the page the browser returns to after authorization.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

const DefaultTimeout = 10 * time.Minute

var (
	successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html><head><title>Login complete</title></head>
<body><h1>Login complete</h1><p>You can close this window and return to the terminal.</p></body></html>`))

	errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html><head><title>Login failed</title></head>
<body><h1>Login failed</h1><p>{{.Error}}{{if .Description}}: {{.Description}}{{end}}</p>
<p>Return to the terminal and start a new login.</p></body></html>`))
)

// Server accepts exactly one callback on the path of the redirect URL and
// then shuts itself down.
type Server struct {
	redirect *url.URL
	server   *http.Server
	listener net.Listener
	resultCh chan *url.URL
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewServer prepares a listener for the redirect URL, which must be a plain
// http URL. A port of 0 picks a free one; RedirectURL reports the result.
func NewServer(redirectURL string) (*Server, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URL %q must use http to be served locally", redirectURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return &Server{
		redirect: u,
		resultCh: make(chan *url.URL, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// Start listens on the host and port of the redirect URL. The server stops
// when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	port := s.redirect.Port()
	if port == "" {
		port = "80"
	}
	addr := net.JoinHostPort(s.redirect.Hostname(), port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("starting callback listener on %s: %w", addr, err)
	}

	s.listener = listener
	if port == "0" {
		//nolint:forcetypeassert
		actual := listener.Addr().(*net.TCPAddr).Port
		s.redirect.Host = net.JoinHostPort(s.redirect.Hostname(), fmt.Sprint(actual))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.redirect.Path, s.handle)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	slogctx.Debug(ctx, "Callback listener started", "redirect_url", s.RedirectURL())

	return nil
}

// RedirectURL is the URL the provider must redirect to.
func (s *Server) RedirectURL() string {
	u := *s.redirect
	u.RawQuery = ""

	return u.String()
}

// Wait returns the full callback URL, query included.
func (s *Server) Wait(ctx context.Context) (*url.URL, error) {
	select {
	case u := <-s.resultCh:
		return u, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.process(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	query := r.URL.Query()

	var err error
	if e := query.Get("error"); e != "" {
		err = errorPage.Execute(w, map[string]string{
			"Error":       e,
			"Description": query.Get("error_description"),
		})
	} else {
		err = successPage.Execute(w, nil)
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	received := *s.redirect
	received.RawQuery = r.URL.RawQuery

	select {
	case s.resultCh <- &received:
	default:
	}

	// let the response flush before shutting down
	go func() {
		time.Sleep(time.Second)
		s.Stop()
	}()
}

func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
