// Command orchestrator runs the Parallel Task Orchestrator as a single
// process: Store Gateway, Graph Analyzer, Parallelism Calculator, Conflict
// Resolver, Readiness Evaluator, and Worker Orchestrator, fronted by a
// minimal health/trigger mux (no /metrics route is served, since
// otelinit.InitMetrics returns no Prometheus handler) rather than a general
// REST API — HTTP/REST transport and a CLI
// surface are explicitly out of scope for this binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskmesh/pto/internal/conflict"
	"github.com/taskmesh/pto/internal/events"
	"github.com/taskmesh/pto/internal/model"
	"github.com/taskmesh/pto/internal/parallelism"
	"github.com/taskmesh/pto/internal/platform/config"
	"github.com/taskmesh/pto/internal/platform/logging"
	"github.com/taskmesh/pto/internal/platform/otelinit"
	"github.com/taskmesh/pto/internal/readiness"
	"github.com/taskmesh/pto/internal/resolver"
	"github.com/taskmesh/pto/internal/store"
	"github.com/taskmesh/pto/internal/worker"
)

func main() {
	service := "pto-orchestrator"
	logging.Init(service)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics, promHandler, _ := otelinit.InitMetrics(ctx, service)

	dbPath := getenv("PTO_DB_PATH", "pto.db")
	gw, err := store.Open(dbPath)
	if err != nil {
		slog.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer gw.Close()

	cfg, err := config.NewStore(getenv("PTO_CONFIG_PATH", ""))
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Watch(ctx); err != nil {
		slog.Warn("config hot-reload disabled", "error", err)
	}

	bus := events.NewBus(getenv("NATS_URL", ""))
	defer bus.Close()

	detector := conflict.NewDetector(cfg.Get().ConflictConfidence)
	calc := parallelism.New(gw, detector)
	readinessEngine, err := readiness.NewEngine(ctx)
	if err != nil {
		slog.Error("readiness policy compile failed", "error", err)
		os.Exit(1)
	}
	resolv := resolver.New(gw, calc, readinessEngine)

	var overrideSigner *worker.OverrideSigner
	if secret := os.Getenv("PTO_OVERRIDE_SECRET"); secret != "" {
		overrideSigner = worker.NewOverrideSigner([]byte(secret))
	}

	dispatcher := worker.NewSimDispatcher(50 * time.Millisecond)
	orch := worker.New(gw, calc, readinessEngine, dispatcher, bus, overrideSigner, cfg)

	maintainer := worker.NewMaintainer(orch)
	if err := maintainer.Start(ctx); err != nil {
		slog.Error("maintenance scheduler start failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/task-lists/resolve", func(w http.ResponseWriter, r *http.Request) {
		handleResolve(w, r, gw, calc, resolv, bus)
	})

	mux.HandleFunc("/v1/task-lists/execute", func(w http.ResponseWriter, r *http.Request) {
		handleExecute(w, r, orch)
	})

	if promHandler != nil {
		if h, ok := promHandler.(http.Handler); ok {
			mux.Handle("/metrics", h)
		}
	}

	srv := &http.Server{Addr: getenv("PTO_ADDR", ":8080"), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	slog.Info("orchestrator started", "addr", srv.Addr, "db", dbPath)
	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = maintainer.Stop(shutdownCtx)
	otelinit.Flush(shutdownCtx, shutdownTrace)
	_ = shutdownMetrics(shutdownCtx)
	slog.Info("shutdown complete")
}

type resolveRequest struct {
	TaskListID string `json:"task_list_id"`
}

func handleResolve(w http.ResponseWriter, r *http.Request, gw *store.Gateway, calc *parallelism.Calculator, resolv *resolver.Resolver, bus *events.Bus) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskListID == "" {
		http.Error(w, "task_list_id required", http.StatusBadRequest)
		return
	}

	ws, err := calc.ComputeWaves(r.Context(), req.TaskListID, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	bus.EmitConflicts(ws)

	results, err := resolv.Resolve(r.Context(), req.TaskListID, ws.Analyses)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bus.EmitResolutions(results)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"waves":      ws.Waves,
		"resolution": results,
	})
}

type executeRequest struct {
	TaskListID     string `json:"task_list_id"`
	ConcurrencyCap int    `json:"concurrency_cap,omitempty"`
	OverrideToken  string `json:"override_token,omitempty"`
}

func handleExecute(w http.ResponseWriter, r *http.Request, orch *worker.Orchestrator) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskListID == "" {
		http.Error(w, "task_list_id required", http.StatusBadRequest)
		return
	}

	sess, err := orch.StartExecution(r.Context(), worker.StartOptions{
		TaskListID:     req.TaskListID,
		ConcurrencyCap: req.ConcurrencyCap,
		OverrideToken:  req.OverrideToken,
	})
	if err != nil {
		var blocked *model.ErrExecutionBlocked
		if errors.As(err, &blocked) {
			w.WriteHeader(http.StatusPreconditionFailed)
			_ = json.NewEncoder(w).Encode(blocked)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"run_id": sess.RunID()})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
