package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"lms/internal/api/auth"
	"lms/internal/api/discovery"
	"lms/internal/api/library"
	"lms/internal/api/listenparty"
	"lms/internal/api/playercontrol"
	"lms/internal/api/playlist"
	"lms/internal/api/queue"
	"lms/internal/api/stream"
	"lms/internal/config"
	"lms/internal/objstore"
	"lms/internal/player"
	"lms/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.Load()

	// --- SQLite ---
	db, err := store.Open(cfg.DBPath, cfg.DBPoolSize)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.ShowQueries(cfg.DBShowQueries)
	slog.Info("database opened", "path", cfg.DBPath)

	if err := db.CheckIntegrity(ctx, cfg.DBIntegrityCheck); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	slog.Info("schema up to date")

	// --- KeyVal (Valkey/Redis) ---
	kv := redis.NewClient(&redis.Options{Addr: cfg.KVAddr})
	defer kv.Close()
	if err := kv.Ping(ctx).Err(); err != nil {
		slog.Warn("keyval unreachable at startup", "err", err)
	} else {
		slog.Info("keyval connected")
	}

	// --- Object store ---
	var obj objstore.ObjectStore
	switch cfg.StoreBackend {
	case "s3":
		obj, err = objstore.NewS3(ctx, objstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.StoreBucket,
		})
		if err != nil {
			return fmt.Errorf("s3 store: %w", err)
		}
	default:
		obj, err = objstore.NewLocalFS(cfg.StoreRoot)
		if err != nil {
			return fmt.Errorf("local store: %w", err)
		}
	}
	slog.Info("object store ready", "backend", cfg.StoreBackend)
	jwtSecret := cfg.JWTSecret
	port := cfg.HTTPPort

	// --- mDNS advertisement ---
	if portNum, err := strconv.Atoi(port); err == nil {
		if mdnsSrv, err := discovery.Start(portNum, cfg.ServerName); err != nil {
			slog.Warn("mdns start failed", "err", err)
		} else {
			defer mdnsSrv.Shutdown()
		}
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Health
	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(db, kv))

	// Auth (no JWT required)
	authSvc := auth.New(db, kv, jwtSecret)
	r.Route("/auth", authSvc.Routes)

	// Stream service (covers are public; streaming requires JWT)
	streamSvc := stream.New(db, obj, kv, cfg)

	// Listen parties validate JWTs internally per-route (host vs. open guest
	// access on the same WebSocket endpoint), so they sit outside jwtMW.
	lpSvc := listenparty.New(db, kv, streamSvc, jwtSecret)
	r.Route("/listen-parties", lpSvc.Routes)
	// Public cover routes (browser <img> can't set Authorization header)
	r.Get("/covers/{album_id}", streamSvc.Cover)
	r.Get("/covers/playlist/{id}", streamSvc.PlaylistCover)
	r.Get("/covers/playlist/{id}/composite", streamSvc.PlaylistCoverComposite)

	// Protected routes
	jwtMW := auth.JWTMiddleware(jwtSecret, kv)
	r.Group(func(r chi.Router) {
		r.Use(jwtMW)

		libSvc := library.New(db)
		r.Route("/library", libSvc.Routes)

		r.Get("/stream/{track_id}", streamSvc.Stream)
		r.Get("/artists/{artist_id}/image", streamSvc.ArtistImage)

		plSvc := playlist.New(db)
		r.Route("/playlists", plSvc.Routes)

		qSvc := queue.New(db, kv)
		r.Route("/queue", qSvc.Routes)

		pc := playercontrol.New(db, newLocalPlayer(cfg))
		r.Route("/player", pc.Routes)
	})

	// --- HTTP server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming — no write timeout
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// newLocalPlayer builds the process-wide Player around the configured
// sink backend: "pulse" for real PulseAudio output via pacat,
// "file" to capture raw PCM for inspection, anything else falls back to a
// silent NullSink for headless/test deployments.
func newLocalPlayer(cfg config.Settings) *player.Player {
	var sink player.Sink
	switch cfg.PlayerSinkBackend {
	case "pulse":
		sink = player.NewPulseSink("")
	case "file":
		sink = player.NewFileSink(cfg.PlayerSinkFilePath)
	default:
		sink = player.NewNullSink()
	}

	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	newTrans := func(ctx context.Context, e player.Entry, offset time.Duration) (player.Transcoder, error) {
		return player.NewFFmpegTranscoder(ctx, ffmpegPath, e.Path, offset)
	}
	return player.New(sink, newTrans)
}

// healthz is the liveness endpoint — always 200.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz is the readiness endpoint — checks the database and KeyVal.
func readyz(db *store.DB, kv *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := kv.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "keyval: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Range, Accept-Ranges, X-LMS-Bit-Depth, X-LMS-Sample-Rate")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

