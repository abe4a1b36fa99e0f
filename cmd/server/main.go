package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"twinforge/internal/external/ai"
	"twinforge/internal/external/geodata"
	"twinforge/internal/persistence/indexdb"
	persistlog "twinforge/internal/persistence/log"
	"twinforge/internal/sim/physics"
	"twinforge/internal/sim/tuning"
	"twinforge/internal/sim/world"
	"twinforge/internal/store/assets"
	"twinforge/internal/store/projects"
	"twinforge/internal/transport/rest"
	"twinforge/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the activity index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	assetStore, err := assets.Open(filepath.Join(*dataDir, "models"), tune.MaxUploadBytes, tune.AllowedExtensions)
	if err != nil {
		logger.Fatalf("open asset store: %v", err)
	}
	projectStore, err := projects.Open(filepath.Join(*dataDir, "projects"))
	if err != nil {
		logger.Fatalf("open project store: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "activity.db"))
		if err != nil {
			logger.Fatalf("open activity index: %v", err)
		}
		defer idx.Close()
	} else {
		logger.Printf("activity index disabled (-disable_db)")
	}

	w, err := world.New(world.Config{
		TickRateHz:  tune.TickRateHz,
		ClientQueue: tune.ClientQueue,
	}, &physics.Gravity{G: tune.Gravity}, logger)
	if err != nil {
		logger.Fatalf("create world: %v", err)
	}
	for _, obj := range tune.Objects {
		if err := w.AddObject(obj.ID, physics.Vec3{X: obj.Pos[0], Y: obj.Pos[1], Z: obj.Pos[2]}, obj.Mass); err != nil {
			logger.Fatalf("seed object %s: %v", obj.ID, err)
		}
	}

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()
	w.SetTickLogger(tickLog)

	externalTimeout := time.Duration(tune.ExternalTimeoutMs) * time.Millisecond
	var aiClient *ai.Client
	if c, err := ai.New(tune.AIBaseURL, os.Getenv("OPENAI_API_KEY"), tune.AIModel, externalTimeout); err != nil {
		logger.Printf("ai client disabled: %v", err)
	} else {
		aiClient = c
	}
	var geoClient *geodata.Client
	if c, err := geodata.New(tune.OverpassURL, externalTimeout, logger); err != nil {
		logger.Printf("geodata client disabled: %v", err)
	} else {
		geoClient = c
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"status":  "ok",
			"tick":    w.CurrentTick(),
			"viewers": w.Registry().Len(),
			"ai":      aiClient.Configured(),
			"geodata": geoClient != nil,
		})
	})
	mux.HandleFunc("/sensor_list", func(rw http.ResponseWriter, r *http.Request) {
		ids := w.SensorIDs()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"sensors": ids,
			"count":   len(ids),
		})
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP twinforge_world_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE twinforge_world_tick counter\n")
		fmt.Fprintf(rw, "twinforge_world_tick %d\n", tick)

		fmt.Fprintf(rw, "# HELP twinforge_world_viewers Currently connected viewers.\n")
		fmt.Fprintf(rw, "# TYPE twinforge_world_viewers gauge\n")
		fmt.Fprintf(rw, "twinforge_world_viewers %d\n", w.Registry().Len())

		fmt.Fprintf(rw, "# HELP twinforge_world_objects Simulated objects.\n")
		fmt.Fprintf(rw, "# TYPE twinforge_world_objects gauge\n")
		fmt.Fprintf(rw, "twinforge_world_objects %d\n", m.Objects)

		fmt.Fprintf(rw, "# HELP twinforge_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE twinforge_world_step_ms gauge\n")
		fmt.Fprintf(rw, "twinforge_world_step_ms %.3f\n", m.StepMS)

		fmt.Fprintf(rw, "# HELP twinforge_world_step_errors Total failed physics steps.\n")
		fmt.Fprintf(rw, "# TYPE twinforge_world_step_errors counter\n")
		fmt.Fprintf(rw, "twinforge_world_step_errors %d\n", m.StepErrors)
	})
	mux.HandleFunc("/admin/v1/activity", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		events, err := idx.Recent(ctx2, 100)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if events == nil {
			events = []indexdb.Event{}
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "events": events})
	})

	wsSrv := ws.NewServer(w, ws.Config{
		Gravity:     tune.Gravity,
		SendTimeout: time.Duration(tune.SendTimeoutMs) * time.Millisecond,
	}, logger)
	mux.HandleFunc("/ws", wsSrv.Handler())

	rest.NewServer(assetStore, projectStore, idx, aiClient, geoClient, logger).Register(mux)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick %d Hz, %d seed objects)", *addr, tune.TickRateHz, len(tune.Objects))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
