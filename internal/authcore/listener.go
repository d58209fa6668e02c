package authcore

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"
)

// DefaultLoginTimeout bounds how long a login waits for the provider
// redirect before giving up and releasing the callback port.
const DefaultLoginTimeout = 120 * time.Second

// CallbackListener is a short-lived HTTP server on a fixed localhost port
// that captures a single provider redirect and then shuts down. It resolves
// exactly once: whichever of first-callback, timeout, or context
// cancellation happens first wins, and later callback hits get a static
// "already completed" page without affecting the outcome.
type CallbackListener struct {
	port int
	path string

	server   *net.TCPListener
	httpSrv  *http.Server
	resultCh chan url.Values

	mu      sync.Mutex
	settled bool
}

// NewCallbackListener returns a listener for the given port and callback
// path. Start must be called before Await.
func NewCallbackListener(port int, path string) *CallbackListener {
	return &CallbackListener{
		port: port,
		path: path,
		// Buffered so the HTTP handler never blocks on a departed waiter.
		resultCh: make(chan url.Values, 1),
	}
}

// Start binds the callback port and begins serving. It returns the redirect
// URI to hand to the provider. Binding happens before Start returns, so the
// listener is guaranteed to be accepting connections before any consent URL
// built from the returned URI reaches a browser.
func (l *CallbackListener) Start() (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", l.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			return "", &PortInUseError{Port: l.port, Err: err}
		}
		return "", fmt.Errorf("binding callback listener on %s: %w", addr, err)
	}
	l.server = ln.(*net.TCPListener)

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleCallback)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	l.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go l.httpSrv.Serve(ln) //nolint:errcheck // always returns ErrServerClosed on Stop

	return fmt.Sprintf("http://localhost:%d%s", l.port, l.path), nil
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.settled {
		l.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, alreadyCompletedPage)
		return
	}
	l.settled = true
	l.mu.Unlock()

	query := r.URL.Query()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if query.Get("error") != "" {
		fmt.Fprintf(w, errorPage, html.EscapeString(query.Get("error")))
	} else {
		fmt.Fprint(w, successPage)
	}
	l.resultCh <- query
}

// Await blocks until the first callback arrives, the timeout elapses, or
// ctx is cancelled. A redirect carrying an error parameter resolves as a
// *ProviderAuthError. Await stops the listener before returning, releasing
// the port in every outcome.
func (l *CallbackListener) Await(ctx context.Context, timeout time.Duration) (url.Values, error) {
	defer l.Stop()

	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case query := <-l.resultCh:
		if errCode := query.Get("error"); errCode != "" {
			return nil, &ProviderAuthError{
				Code:        errCode,
				Description: query.Get("error_description"),
			}
		}
		return query, nil
	case <-timer.C:
		l.settle()
		return nil, ErrLoginTimeout
	case <-ctx.Done():
		l.settle()
		return nil, ctx.Err()
	}
}

// settle marks the listener resolved so a late-arriving callback cannot
// push into resultCh after the waiter has left.
func (l *CallbackListener) settle() {
	l.mu.Lock()
	l.settled = true
	l.mu.Unlock()
}

// Stop shuts the HTTP server down and releases the port. Safe to call more
// than once.
func (l *CallbackListener) Stop() {
	if l.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.httpSrv.Shutdown(ctx) //nolint:errcheck // best effort on teardown
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>&#10003; Authentication successful</h1>
<p>You can close this window and return to your terminal.</p>
<script>setTimeout(function() { window.close(); }, 2000);</script>
</body>
</html>`

const errorPage = `<!DOCTYPE html>
<html>
<head><title>Authentication Failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>&#10007; Authentication failed</h1>
<p>The provider reported: <code>%s</code></p>
<p>Close this window and retry from your terminal.</p>
</body>
</html>`

const alreadyCompletedPage = `<!DOCTYPE html>
<html>
<head><title>Already Completed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Login already completed</h1>
<p>This login attempt has already finished. You can close this window.</p>
</body>
</html>`
