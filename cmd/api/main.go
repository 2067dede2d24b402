package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/config"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/conversation"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/directory"
	chatlog "github.com/PaulBabatuyi/inboxChat-gRPC/internal/logging"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/web"
	v1 "github.com/PaulBabatuyi/inboxChat-gRPC/proto/chat/v1"
	"github.com/gin-gonic/gin"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var log = logging.MustGetLogger("api")

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Chat server",
	Long:  "Serves the chat gRPC API, avatar downloads and live WebSocket views",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC and HTTP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLogs, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLogs()
		return serve(cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create indexes or tables for the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLogs, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLogs()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := migrate(ctx, cfg); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		log.Infof("migrated %s backend", cfg.Backend)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./config.yaml)")
	flags.String("backend", config.BackendMemory, "Storage backend: memory, mongo or postgres")
	flags.String("mongodb_uri", "", "MongoDB connection URI")
	flags.String("mongodb_database", "chat_db", "MongoDB database name")
	flags.String("postgres_url", "", "PostgreSQL connection URL")
	flags.String("port", "50051", "gRPC listen port")
	flags.String("http_port", "8080", "HTTP listen port")
	flags.String("public_url", "", "Public base URL of the HTTP server, used in avatar links")
	flags.String("log_level", "info", "Log level")
	flags.String("log_file", "", "Optional rotating log file")
	flags.Bool("mirror_recipient_summary", false, "Also update the recipient's inbox on send")
	flags.Bool("rollback_registration", false, "Undo earlier steps when registration fails part way")
	flags.Int("send_retries", 0, "Extra attempts per message write")

	for _, name := range []string{
		"backend", "mongodb_uri", "mongodb_database", "postgres_url", "port", "http_port",
		"public_url", "log_level", "log_file", "mirror_recipient_summary",
		"rollback_registration", "send_retries",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func initConfig() {
	if f, _ := rootCmd.PersistentFlags().GetString("config"); f != "" {
		viper.SetConfigFile(f)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the configuration and installs the log backends. The
// returned func closes the log file, if any.
func loadConfig() (config.Config, func(), error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, err
	}
	w := chatlog.Setup(chatlog.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	return cfg, func() {
		if w != nil {
			_ = w.Close()
		}
	}, nil
}

func newJWTManager(cfg config.Config) *auth.JWTManager {
	// JWT_KEYS allows rotation; a single JWT_SECRET is still accepted.
	if len(cfg.JWTKeys) > 0 {
		return auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.JWTTTL)
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
}

// newGRPCServer assembles interceptors and registers the service.
func newGRPCServer(srv *Server, jwtMgr *auth.JWTManager, limiterStore *middleware.LimiterStore, opts ...grpc.ServerOption) *grpc.Server {
	limited := map[string]bool{
		v1.ChatService_Register_FullMethodName:    true,
		v1.ChatService_Login_FullMethodName:       true,
		v1.ChatService_SendMessage_FullMethodName: true,
	}

	// auth runs first so the limiter can key SendMessage by user
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			authUnaryInterceptor(jwtMgr),
			middleware.RateLimitUnaryInterceptor(limiterStore, limited, userIDFromContext),
		),
		grpc.ChainStreamInterceptor(authStreamInterceptor(jwtMgr)),
	)

	grpcServer := grpc.NewServer(opts...)
	registerService(grpcServer, srv)
	return grpcServer
}

func serve(cfg config.Config) error {
	ctx := context.Background()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()
	log.Infof("using %s backend", cfg.Backend)

	jwtMgr := newJWTManager(cfg)
	identity := auth.NewLocalProvider(be.accounts, jwtMgr)
	convos := conversation.New(be.docs, directory.New(be.docs), conversation.Options{
		MirrorRecipientSummary: cfg.MirrorSummary,
		Retry:                  cfg.SendRetries,
	})
	hub := newSessionHub(jwtMgr)
	srv := newServer(identity, be.blobs, be.docs, convos, hub, cfg.RollbackSignup)

	// Create limiter store (small burst to allow a couple of quick retries)
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiterStore.Stop()

	var serverOpts []grpc.ServerOption
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load TLS certs: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	grpcServer := newGRPCServer(srv, jwtMgr, limiterStore, serverOpts...)

	listenAddr := fmt.Sprintf(":%s", cfg.Port)
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           web.NewServer(be.blobs, be.docs, convos, jwtMgr, hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("gRPC server listening on %s", listenAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		log.Infof("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-stop:
	case runErr = <-errCh:
		log.Errorf("server exited: %v", runErr)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warningf("http shutdown: %v", err)
	}
	// Live streams only end when clients leave, so GracefulStop is bounded.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	return runErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
