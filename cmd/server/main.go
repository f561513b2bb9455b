// Package main is the process entry point — Dependency Injection wire-up:
//  1. load config
//  2. open the database and run migrations
//  3. build repositories
//  4. build the permission resolver, invite service, media adapter
//  5. build rate limiters and the admin gate
//  6. build the WebSocket hub
//  7. build REST handlers
//  8. wire the HTTP router and CORS
//  9. start the listener
//  10. graceful shutdown
//
// No global state — everything is constructed here and passed down.
package main

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/ehrma/signalcore/admin"
	"github.com/ehrma/signalcore/config"
	"github.com/ehrma/signalcore/database"
	"github.com/ehrma/signalcore/handlers"
	"github.com/ehrma/signalcore/invite"
	"github.com/ehrma/signalcore/media"
	"github.com/ehrma/signalcore/perm"
	"github.com/ehrma/signalcore/pkg/ratelimit"
	"github.com/ehrma/signalcore/pkg/sessiontoken"
	"github.com/ehrma/signalcore/repository"
	"github.com/ehrma/signalcore/ws"
)

func newID() string { return uuid.NewString() }

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] signalcore starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	log.Printf("[main] config loaded (addr=%s)", cfg.Addr())

	migrationsFS, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		log.Fatalf("[main] failed to access embedded migrations: %v", err)
	}
	db, err := database.New(cfg.DBPath, migrationsFS)
	if err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("[main] failed to create data directory: %v", err)
	}

	// ─── repositories ───
	userRepo := repository.NewSQLiteUserRepo(db.Conn)
	serverRepo := repository.NewSQLiteServerRepo(db.Conn)
	channelRepo := repository.NewSQLiteChannelRepo(db.Conn)
	memberRepo := repository.NewSQLiteMemberRepo(db.Conn)
	roleRepo := repository.NewSQLiteRoleRepo(db.Conn)
	overrideRepo := repository.NewSQLiteChannelPermissionRepo(db.Conn)
	banRepo := repository.NewSQLiteBanRepo(db.Conn)
	chatRepo := repository.NewSQLiteChatRepo(db.Conn)
	inviteRepo := repository.NewSQLiteInviteRepo(db.Conn)
	credentialRepo := repository.NewSQLiteCredentialRepo(db.Conn)

	// ─── permission engine ───
	resolver := perm.NewResolver(roleRepo, channelRepo, overrideRepo)
	permCache := perm.NewCachedResolver(resolver)

	// ─── invite/credential service ───
	inviteService := invite.NewService(inviteRepo, credentialRepo, newID)

	// ─── media broker ───
	if cfg.LiveKit.APIKey == "" || cfg.LiveKit.APISecret == "" {
		log.Println("[main] warning: LIVEKIT_API_KEY/LIVEKIT_API_SECRET not set, media routes will fail token issuance")
	}
	sfu := media.NewLiveKitSFU(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	mediaAdapter := media.NewAdapter(sfu)

	// ─── rate limiters ───
	preAuthLimiter := ratelimit.NewIPLimiter(10, time.Minute)
	defer preAuthLimiter.Stop()
	redeemLimiter := ratelimit.NewIPLimiter(20, time.Minute)
	defer redeemLimiter.Stop()

	// ─── admin gate ───
	gate := admin.New(cfg.AdminToken, cfg.OpenAdmin)

	// ─── session tokens ───
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		log.Println("[main] warning: JWT_SECRET not set, generating an ephemeral one for this process")
		jwtSecret = newID() + newID()
	}
	tokens := sessiontoken.New(jwtSecret)

	// ─── WebSocket hub ───
	hub := ws.NewHub(ws.Deps{
		Config:    cfg,
		Servers:   serverRepo,
		Channels:  channelRepo,
		Users:     userRepo,
		Members:   memberRepo,
		Roles:     roleRepo,
		Overrides: overrideRepo,
		Bans:      banRepo,
		Chat:      chatRepo,
		Invites:   inviteService,
		Perms:     permCache,
		Media:     mediaAdapter,
		IPLimit:   preAuthLimiter,
		NewID:     newID,
	})

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go hub.RunHeartbeat(heartbeatCtx)

	// ─── REST handlers ───
	inviteHandler := handlers.NewInviteHandler(inviteService, gate, redeemLimiter, tokens, cfg.TrustProxy)
	uploadHandler := handlers.NewUploadHandler(userRepo, serverRepo, cfg.DataDir, gate, tokens)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.ServeWS)

	mux.HandleFunc("POST /api/servers/{serverId}/invites", inviteHandler.Mint)
	mux.HandleFunc("GET /api/invites/{token}", inviteHandler.Lookup)
	mux.HandleFunc("POST /api/invites/redeem", inviteHandler.Redeem)

	mux.HandleFunc("POST /api/users/{userId}/avatar", uploadHandler.UserAvatar)
	mux.HandleFunc("POST /api/servers/{serverId}/icon", uploadHandler.ServerIcon)

	uploadsHandler := http.StripPrefix("/uploads/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "..") {
			http.NotFound(w, r)
			return
		}
		http.FileServer(http.Dir(cfg.DataDir)).ServeHTTP(w, r)
	}))
	mux.Handle("GET /avatars/", uploadsHandler)
	mux.Handle("GET /icons/", uploadsHandler)

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[main] listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	<-done
	log.Println("[main] shutting down...")

	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("[main] forced shutdown: %v", err)
	}
	log.Println("[main] stopped")
}
