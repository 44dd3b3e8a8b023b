package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/web-sentinel/keeper/ledger"
	"github.com/web-sentinel/keeper/registry"
	"github.com/web-sentinel/keeper/runner"
	"github.com/web-sentinel/keeper/tracker"
	"github.com/web-sentinel/keeper/types"
	"github.com/web-sentinel/keeper/uploader"
)

// Core is the surface the HTTP API exposes. Each endpoint is a thin adapter;
// serialization of reconciliation passes lives in the core, not here.
type Core interface {
	RunSuite(ctx context.Context, suite string) (*types.SuiteRun, error)
	RunProject(ctx context.Context) ([]*types.SuiteRun, error)
	Reconcile(ctx context.Context) (*types.PassResult, error)
	UploadArtifacts(ctx context.Context, creds uploader.Credentials) (*uploader.SweepResult, error)
	PushTracker(ctx context.Context, creds tracker.Credentials) (*tracker.PushResult, error)
	LedgerJSON(ctx context.Context) ([]byte, error)
	ProvisionWorkspace(ctx context.Context, repoURL, branch string) error
	InstallEnvFile(data []byte) (string, error)
}

// APIServer serves the JSON API over the core operations
type APIServer struct {
	ctx    context.Context
	core   Core
	log    *slog.Logger
	server *http.Server
}

// NewAPIServer creates an API server bound to core
func NewAPIServer(core Core, log *slog.Logger) *APIServer {
	if log == nil {
		log = slog.Default()
	}
	return &APIServer{core: core, log: log}
}

func (a *APIServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("GET /", a.handleRoot)
	hdlr.HandleFunc("POST /run-suite", a.handleRunSuite)
	hdlr.HandleFunc("POST /run-project", a.handleRunProject)
	hdlr.HandleFunc("POST /reconcile", a.handleReconcile)
	hdlr.HandleFunc("POST /upload-artifacts", a.handleUploadArtifacts)
	hdlr.HandleFunc("POST /push-tracker", a.handlePushTracker)
	hdlr.HandleFunc("GET /ledger", a.handleLedger)
	hdlr.HandleFunc("POST /workspace", a.handleWorkspace)
	hdlr.HandleFunc("PUT /env", a.handleEnv)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	a.server = server
	a.ctx = ctx
	a.log.Info("starting api server", "addr", addr)
	return a.server.ListenAndServe()
}

func (a *APIServer) Shutdown() error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(a.ctx)
}

func (a *APIServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *APIServer) handleRunSuite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SuiteName string `json:"suiteName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SuiteName == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing or invalid suiteName"))
		return
	}

	a.log.Info("Received request to run suite", "suite", req.SuiteName)
	run, err := a.core.RunSuite(r.Context(), req.SuiteName)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, run)
}

func (a *APIServer) handleRunProject(w http.ResponseWriter, r *http.Request) {
	a.log.Info("Received request to run project")
	runs, err := a.core.RunProject(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, runs)
}

func (a *APIServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	pass, err := a.core.Reconcile(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, pass)
}

func (a *APIServer) handleUploadArtifacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Repo  string `json:"repo"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	creds := uploader.Credentials{URL: req.URL, Repo: req.Repo, Token: req.Token}
	if err := creds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sweep, err := a.core.UploadArtifacts(r.Context(), creds)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if sweep.Failed > 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "one or more artifact uploads failed",
			"result":  sweep,
		})
		return
	}
	writeResult(w, sweep)
}

func (a *APIServer) handlePushTracker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User     string `json:"user"`
		Password string `json:"pass"`
		Project  string `json:"project"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	creds := tracker.Credentials{User: req.User, Password: req.Password, Project: req.Project}
	if err := creds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	push, err := a.core.PushTracker(r.Context(), creds)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeResult(w, push)
}

func (a *APIServer) handleLedger(w http.ResponseWriter, r *http.Request) {
	data, err := a.core.LedgerJSON(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (a *APIServer) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepoURL    string `json:"repoUrl"`
		BranchName string `json:"branchName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing or invalid repoUrl"))
		return
	}

	if err := a.core.ProvisionWorkspace(r.Context(), req.RepoURL, req.BranchName); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "workspace provisioned"})
}

func (a *APIServer) handleEnv(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty env file"))
		return
	}

	path, err := a.core.InstallEnvFile(data)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": path})
}

// statusFor maps core error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrSuiteNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrEmptySuite):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrReportTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, runner.ErrMalformedReport):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrPersist):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
