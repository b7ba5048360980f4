package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/studio"
	"github.com/caffeineduck/scratchpad/terminal"
	"github.com/caffeineduck/scratchpad/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the workspace, runs, terminals and preview",
	Long: `Start an HTTP server over one scratchpad.

Endpoints:
  GET    /health                      Health check
  GET    /api/files                   List open files
  POST   /api/files                   Open a file {"name","content"}; empty body creates untitled-N.js
  GET    /api/files/{id}              Read one file
  PUT    /api/files/{id}              Replace content {"content"}
  DELETE /api/files/{id}              Close a file
  GET    /api/active                  Active file
  PUT    /api/active                  Activate {"id"}
  POST   /api/run                     Run {"kind","content"} or {"file"}; streams NDJSON lines
  GET    /api/sessions                List terminal sessions
  POST   /api/sessions                Open a session
  DELETE /api/sessions/{id}           Close a session
  POST   /api/sessions/{id}/activate  Make a session active
  POST   /api/sessions/{id}/submit    Submit {"command","wait"}; returns the log
  POST   /api/sessions/{id}/clear     Clear the log
  GET    /api/sessions/{id}/log       Session log
  GET    /api/runtime                 Python runtime state
  GET    /preview                     Composed preview document
  POST   /preview/reload              Force a rebuild
  GET    /preview/frame               Page embedding the preview in a sandboxed iframe`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config: 127.0.0.1:8080)")
	serveCmd.Flags().Bool("preload", false, "Load the Python runtime at startup")
	rootCmd.AddCommand(serveCmd)
}

// maxBodySize matches the largest file a workspace accepts.
const maxBodySize = 1 << 20

type server struct {
	st     *studio.Studio
	logger *log.Logger
}

func newHandler(st *studio.Studio) http.Handler {
	s := &server{st: st, logger: st.Logger.WithPrefix("http")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/files", s.listFiles)
	mux.HandleFunc("POST /api/files", s.openFile)
	mux.HandleFunc("GET /api/files/{id...}", s.getFile)
	mux.HandleFunc("PUT /api/files/{id...}", s.updateFile)
	mux.HandleFunc("DELETE /api/files/{id...}", s.closeFile)
	mux.HandleFunc("GET /api/active", s.getActive)
	mux.HandleFunc("PUT /api/active", s.setActive)

	mux.HandleFunc("POST /api/run", s.run)

	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.closeSession)
	mux.HandleFunc("POST /api/sessions/{id}/activate", s.activateSession)
	mux.HandleFunc("POST /api/sessions/{id}/submit", s.submit)
	mux.HandleFunc("POST /api/sessions/{id}/clear", s.clearSession)
	mux.HandleFunc("GET /api/sessions/{id}/log", s.sessionLog)

	mux.HandleFunc("GET /api/runtime", s.runtime)

	mux.Handle("GET /preview", st.Preview)
	mux.HandleFunc("POST /preview/reload", s.reloadPreview)
	mux.HandleFunc("GET /preview/frame", s.previewFrame)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *server) listFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.Store.List())
}

func (s *server) openFile(w http.ResponseWriter, r *http.Request) {
	var rec workspace.Record
	if !decode(w, r, &rec) {
		return
	}
	if rec.Name == "" && rec.ID == "" {
		writeJSON(w, http.StatusCreated, s.st.Store.Create())
		return
	}
	a, err := rec.Artifact()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.st.Store.Open(a)
	got, _ := s.st.Store.Get(a.ID)
	writeJSON(w, http.StatusCreated, got)
}

func (s *server) getFile(w http.ResponseWriter, r *http.Request) {
	a, ok := s.st.Store.Get(workspace.ID(r.PathValue("id")))
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type updateRequest struct {
	Content string `json:"content"`
}

func (s *server) updateFile(w http.ResponseWriter, r *http.Request) {
	id := workspace.ID(r.PathValue("id"))
	if _, ok := s.st.Store.Get(id); !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	s.st.Store.Update(id, req.Content)
	a, _ := s.st.Store.Get(id)
	writeJSON(w, http.StatusOK, a)
}

func (s *server) closeFile(w http.ResponseWriter, r *http.Request) {
	id := workspace.ID(r.PathValue("id"))
	if _, ok := s.st.Store.Get(id); !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	s.st.Store.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getActive(w http.ResponseWriter, r *http.Request) {
	a, ok := s.st.Store.Active()
	if !ok {
		http.Error(w, "no active file", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type activateRequest struct {
	ID workspace.ID `json:"id"`
}

func (s *server) setActive(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decode(w, r, &req) {
		return
	}
	if _, ok := s.st.Store.Get(req.ID); !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	s.st.Store.Activate(req.ID)
	w.WriteHeader(http.StatusNoContent)
}

type runRequest struct {
	Kind    string `json:"kind,omitempty"`
	Content string `json:"content,omitempty"`
	// File runs an open artifact by name instead of Content.
	File string `json:"file,omitempty"`
}

// run streams output lines as newline-delimited JSON, flushing each one.
func (s *server) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		kind    workspace.Kind
		content string
	)
	switch {
	case req.File != "":
		a, ok := s.st.Store.FindByName(req.File)
		if !ok {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		kind, content = a.Kind, a.Content
	case req.Kind != "":
		k, err := workspace.ParseKind(req.Kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind, content = k, req.Content
	default:
		http.Error(w, "kind or file required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for line := range s.st.Router.Run(r.Context(), kind, content) {
		if err := enc.Encode(line); err != nil {
			s.logger.Debug("client went away", "err", err)
			return
		}
		rc.Flush()
	}
}

func (s *server) sessionID(w http.ResponseWriter, r *http.Request) (terminal.SessionID, bool) {
	n, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return 0, false
	}
	id := terminal.SessionID(n)
	for _, sess := range s.st.Terminal.Sessions() {
		if sess.ID == id {
			return id, true
		}
	}
	http.Error(w, "session not found", http.StatusNotFound)
	return 0, false
}

func (s *server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.Terminal.Sessions())
}

type createSessionResponse struct {
	SessionID terminal.SessionID `json:"session_id"`
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: s.st.Terminal.CreateSession()})
}

func (s *server) closeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if !s.st.Terminal.CloseSession(id) {
		http.Error(w, "cannot close the last session", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) activateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	s.st.Terminal.Activate(id)
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Command string `json:"command"`
	// Wait blocks until background runs have been appended.
	Wait bool `json:"wait,omitempty"`
}

func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Command == "" {
		http.Error(w, "command required", http.StatusBadRequest)
		return
	}

	s.st.Terminal.Submit(r.Context(), id, req.Command)
	if req.Wait {
		s.st.Terminal.Wait()
	}
	writeJSON(w, http.StatusOK, s.st.Terminal.Log(id))
}

func (s *server) clearSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	s.st.Terminal.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) sessionLog(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	lines := s.st.Terminal.Log(id)
	if lines == nil {
		lines = []router.OutputLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}

type runtimeResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (s *server) runtime(w http.ResponseWriter, r *http.Request) {
	resp := runtimeResponse{Name: s.st.Bridge.Name(), State: s.st.Bridge.State().String()}
	if err := s.st.Bridge.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type reloadResponse struct {
	Revision uint64 `json:"revision"`
	ETag     string `json:"etag"`
}

func (s *server) reloadPreview(w http.ResponseWriter, r *http.Request) {
	b := s.st.Preview.Reload()
	writeJSON(w, http.StatusOK, reloadResponse{Revision: b.Revision, ETag: b.Document.ETag()})
}

func (s *server) previewFrame(w http.ResponseWriter, r *http.Request) {
	b := s.st.Preview.Current()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>preview r%d</title>"+
		"<style>html,body,iframe{margin:0;width:100%%;height:100%%;border:0}</style></head>\n<body>\n%s\n</body>\n</html>\n",
		b.Revision, b.Document.Frame())
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStudio(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := &http.Server{
		Addr:              st.Config.Serve.Addr,
		Handler:           newHandler(st),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st.Logger.Info("listening", "addr", srv.Addr, "runtime", st.Bridge.State())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		st.Logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
