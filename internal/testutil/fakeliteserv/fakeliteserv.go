// Package fakeliteserv turns a test binary into a stand-in for the LiteServ
// executable. A package's TestMain calls RunIfRequested first; when the
// binary is re-executed with EnvMode set it behaves like LiteServ in the
// requested mode and exits instead of running tests.
package fakeliteserv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
)

// EnvMode selects the fake's behavior. An unset variable means "run tests".
const EnvMode = "LITESERVENV_FAKE_MODE"

// Modes.
const (
	// ModeReady serves and logs the listening line inside a longer line.
	ModeReady = "ready"
	// ModeOffset0 logs the listening line as a chunk that starts with it.
	ModeOffset0 = "offset0"
	// ModeSplit logs the listening line in two writes.
	ModeSplit = "split"
	// ModeSilent serves but never logs the listening line.
	ModeSilent = "silent"
	// ModeWrongPort logs a listening line for another port.
	ModeWrongPort = "wrongport"
	// ModeExit logs an error and exits with status 3 without serving.
	ModeExit = "exit"
)

// ExitStatus is the status ModeExit exits with.
const ExitStatus = 3

// Env returns the environment entry that selects mode.
func Env(mode string) string {
	return EnvMode + "=" + mode
}

// Binary returns the path of the running test binary.
func Binary() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate test binary: %w", err)
	}
	return path, nil
}

// RunIfRequested runs the fake and exits the process when EnvMode is set.
// It returns immediately otherwise.
func RunIfRequested() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(Main(os.Args[1:], mode, os.Stderr))
}

// Main runs the fake with LiteServ's command line and returns its exit
// status. It serves until SIGINT or SIGTERM.
func Main(args []string, mode string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("liteserv", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", 0, "listen port")
	dir := fs.String("dir", "", "database directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *port <= 0 {
		_, _ = fmt.Fprintln(stderr, "fatal: --port is required")
		return 2
	}

	// ModeOffset0 keeps the listening line as the very first stderr write.
	if mode != ModeOffset0 {
		_, _ = fmt.Fprintf(stderr, "LiteServ (fake) starting, args=%q\n", args)
	}
	if mode == ModeExit {
		_, _ = fmt.Fprintln(stderr, "fatal: cannot open database directory")
		return ExitStatus
	}

	srv, err := newServer(*dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "fatal: %v\n", err)
		return 1
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(*port)))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "fatal: listen: %v\n", err)
		return 1
	}
	httpSrv := &http.Server{Handler: srv.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = httpSrv.Serve(ln) }()

	announce(stderr, mode, *port)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	return 0
}

func announce(w io.Writer, mode string, port int) {
	marker := "is listening on port " + strconv.Itoa(port)
	switch mode {
	case ModeReady:
		_, _ = io.WriteString(w, "2024-10-15 I Listener: LiteServ "+marker+"\n")
	case ModeOffset0:
		_, _ = io.WriteString(w, marker+"\n")
	case ModeSplit:
		half := len(marker) / 2
		_, _ = io.WriteString(w, "LiteServ "+marker[:half])
		time.Sleep(50 * time.Millisecond)
		_, _ = io.WriteString(w, marker[half:]+"\n")
	case ModeWrongPort:
		_, _ = io.WriteString(w, "LiteServ is listening on port "+strconv.Itoa(port+1)+"\n")
	case ModeSilent:
		_, _ = io.WriteString(w, "LiteServ opened databases\n")
	}
}

// Handler returns the fake's REST handler over dir, for tests that need the
// endpoints without a child process.
func Handler(dir string) (http.Handler, error) {
	srv, err := newServer(dir)
	if err != nil {
		return nil, err
	}
	return srv.routes(), nil
}

// server keeps the database list in memory and mirrors it to dir, one
// <name>.cblite2 directory per database, when dir is set.
type server struct {
	dir string

	mu  sync.Mutex
	dbs map[string]struct{}
}

func newServer(dir string) (*server, error) {
	s := &server{dir: dir, dbs: make(map[string]struct{})}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		for _, ext := range []string{".cblite2", ".cblite"} {
			if name, ok := strings.CutSuffix(e.Name(), ext); ok {
				s.dbs[name] = struct{}{}
				break
			}
		}
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"CouchbaseLite": "Welcome", "couchdb": "Welcome", "version": "fake"})
	})
	r.Get("/_all_dbs", s.allDBs)
	r.Route("/{db}", func(r chi.Router) {
		r.Get("/", s.getDB)
		r.Put("/", s.putDB)
		r.Delete("/", s.deleteDB)
	})
	return r
}

func (s *server) allDBs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	s.mu.Unlock()
	slices.Sort(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *server) getDB(w http.ResponseWriter, r *http.Request) {
	name, ok := dbName(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	_, exists := s.dbs[name]
	s.mu.Unlock()
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"db_name": name})
}

func (s *server) putDB(w http.ResponseWriter, r *http.Request) {
	name, ok := dbName(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dbs[name]; exists {
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": "file_exists"})
		return
	}
	if s.dir != "" {
		if err := os.MkdirAll(filepath.Join(s.dir, name+".cblite2"), 0o755); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	s.dbs[name] = struct{}{}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (s *server) deleteDB(w http.ResponseWriter, r *http.Request) {
	name, ok := dbName(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dbs[name]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	if s.dir != "" {
		for _, ext := range []string{".cblite2", ".cblite"} {
			if err := os.RemoveAll(filepath.Join(s.dir, name+ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
		}
	}
	delete(s.dbs, name)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func dbName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "db"))
	if err != nil || name == "" || strings.HasPrefix(name, "_") || strings.ContainsAny(name, `/\`) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "illegal_database_name"})
		return "", false
	}
	return name, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
