package admin

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"scriptquest/internal/runner"
)

// Server exposes a small HTTP surface over a running session: a status
// page plus JSON endpoints for status, the last result, and script logs.
type Server struct {
	Runner *runner.Runner
	tpl    *template.Template
	srv    *http.Server
}

//go:embed templates/index.html
var content embed.FS

func NewServer(r *runner.Runner) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{Runner: r, tpl: tpl}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/stop", s.handleStop)
	return mux
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.routes()}
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Challenge string
		Status    runner.Status
		Result    *runner.RunResult
		Logs      []runner.LogLine
	}{
		Challenge: s.Runner.ChallengeID(),
		Status:    s.Runner.Status(),
		Result:    s.Runner.LastResult(),
		Logs:      s.Runner.Logs(),
	}
	s.tpl.Execute(w, data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"challenge": s.Runner.ChallengeID(),
		"status":    s.Runner.Status(),
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res := s.Runner.LastResult()
	if res == nil {
		http.Error(w, "no result yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	logs := s.Runner.Logs()
	if logs == nil {
		logs = []runner.LogLine{}
	}
	json.NewEncoder(w).Encode(logs)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.Runner.Stop()
	w.WriteHeader(http.StatusNoContent)
}
