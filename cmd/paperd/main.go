// Command paperd runs the Paper document sync server: websocket sync on
// /ws, document REST under /api, optional Redis fan-out across processes.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rohseh303/Paper/internal/assist"
	"github.com/rohseh303/Paper/internal/config"
	"github.com/rohseh303/Paper/internal/discovery"
	"github.com/rohseh303/Paper/internal/document"
	"github.com/rohseh303/Paper/internal/engine"
	"github.com/rohseh303/Paper/internal/session"
	"github.com/rohseh303/Paper/internal/store"
	"github.com/rohseh303/Paper/internal/ws"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("bad configuration", zap.Error(err))
	}
	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("store unavailable", zap.Error(err))
	}
	defer st.Close()
	log.Info("document store ready", zap.String("driver", cfg.StoreDriver))

	var backplane engine.Backplane
	if cfg.RedisAddr != "" {
		bp, err := engine.NewRedisBackplane(ctx, cfg.RedisAddr, log)
		if err != nil {
			log.Fatal("redis unavailable", zap.Error(err))
		}
		defer bp.Close()
		backplane = bp
		log.Info("redis backplane connected", zap.String("addr", cfg.RedisAddr))
	}

	var strategy engine.Strategy = engine.Relay{}
	if cfg.Converge {
		strategy = engine.NewConverge(log)
	}

	var worker assist.Worker
	if cfg.OpenAIKey != "" {
		worker = assist.NewOpenAI(cfg.OpenAIKey, cfg.AssistModel)
	} else {
		log.Warn("OPENAI_API_KEY not set, assist answers with a canned suggestion")
		worker = assist.Static{Suggestion: "No suggestion available: assist worker is not configured."}
	}
	manager := assist.NewManager(worker, cfg.AssistTimeout, log)

	eng := engine.New(st, session.NewRegistry(), strategy, manager, backplane, log)

	r := mux.NewRouter()
	r.HandleFunc("/ws", ws.Handler(eng, log))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/documents", listDocuments(st, log)).Methods(http.MethodGet)
	r.HandleFunc("/api/documents", createDocument(st, log)).Methods(http.MethodPost)

	if cfg.MDNS {
		if port, ok := portOf(cfg.Addr); ok {
			stop, err := discovery.Advertise(port, log)
			if err != nil {
				log.Warn("mDNS advertisement failed", zap.Error(err))
			} else {
				defer stop()
			}
		} else {
			log.Warn("mDNS disabled, cannot determine port from listen address",
				zap.String("addr", cfg.Addr))
		}
	}

	log.Info("paper sync server starting", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	case config.StoreBolt:
		return store.NewBolt(cfg.BoltPath)
	default:
		return store.NewMemory(), nil
	}
}

func listDocuments(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := st.List(r.Context())
		if err != nil {
			log.Error("list documents failed", zap.Error(err))
			http.Error(w, "list failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string][]string{"documents": ids})
	}
}

func createDocument(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		if err := st.Save(r.Context(), id, document.EmptyJSON); err != nil {
			log.Error("create document failed", zap.Error(err))
			http.Error(w, "create failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func portOf(addr string) (int, bool) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	return port, true
}
