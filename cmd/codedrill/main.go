package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/codedrill/internal/auth"
	"github.com/pavelanni/codedrill/internal/cache"
	"github.com/pavelanni/codedrill/internal/catalog"
	"github.com/pavelanni/codedrill/internal/exam"
	"github.com/pavelanni/codedrill/internal/handler"
	appI18n "github.com/pavelanni/codedrill/internal/i18n"
	"github.com/pavelanni/codedrill/internal/leaderboard"
	"github.com/pavelanni/codedrill/internal/llm"
	"github.com/pavelanni/codedrill/internal/llm/prompts"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/practice"
	"github.com/pavelanni/codedrill/internal/storage"
	"github.com/pavelanni/codedrill/internal/store"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codedrill",
		Short: "Programming course exams, practice and coding challenges",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), userCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addDBFlags(f interface {
	String(name, value, usage string) *string
}) {
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "codedrill.db", "SQLite path or Postgres DSN")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	addDBFlags(f)
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /drill)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("jwt-secret", "", "HMAC secret for API tokens (or set CODEDRILL_JWT_SECRET)")
	f.Duration("jwt-ttl", 8*time.Hour, "API token lifetime")
	f.String("admin-password", "", "Initial admin password (or set CODEDRILL_ADMIN_PASSWORD)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the JSON API")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables grade suggestions)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Int("suggest-parallel", 4, "Concurrent LLM calls when an exam is submitted")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("redis-url", "", "Redis URL for the leaderboard cache (empty uses memory)")
	f.Duration("leaderboard-ttl", time.Minute, "Leaderboard cache lifetime")
	f.String("blob-driver", "fs", "Export storage (fs, minio, none)")
	f.String("blob-path", "exports", "Directory for the fs export store")
	f.String("minio-endpoint", "localhost:9000", "MinIO endpoint")
	f.String("minio-access-key", "", "MinIO access key")
	f.String("minio-secret-key", "", "MinIO secret key")
	f.String("minio-bucket", "codedrill", "MinIO bucket")
	f.Bool("minio-ssl", false, "Use TLS for MinIO")
	f.Int("practice-count", 10, "Default questions per practice session")
	f.Int("practice-minutes", 20, "Default practice time limit in minutes")
	f.Duration("expiry-interval", 30*time.Second, "How often overdue exams are auto-submitted")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import YAML or JSON question banks into an exam template",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	addDBFlags(f)
	f.Int64("template-id", 0, "Target exam template (required)")
	f.String("as", "admin", "Username the import is performed as")
	_ = cmd.MarkFlagRequired("template-id")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results for a template as CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addDBFlags(f)
	f.Int64("template-id", 0, "Exam template to export (required)")
	f.String("as", "admin", "Username the export is performed as")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("template-id")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create an account",
		RunE:  runUser,
	}
	f := cmd.Flags()
	addDBFlags(f)
	f.String("username", "", "Login name (required)")
	f.String("display-name", "", "Display name")
	f.String("email", "", "Email address")
	f.String("password", "", "Password (or set CODEDRILL_PASSWORD)")
	f.String("role", string(model.UserRoleStudent), "Role (student, professor, admin)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CODEDRILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("codedrill")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/codedrill")
	v.AddConfigPath("/etc/codedrill")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}
	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// actingUser loads the account a CLI command runs as.
func actingUser(ctx context.Context, db *store.Store, username string) (*model.User, error) {
	u, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", username, err)
	}
	if u == nil || !u.Active {
		return nil, fmt.Errorf("user %q not found or inactive", username)
	}
	return u, nil
}

func newBlobStore(ctx context.Context, v *viper.Viper) (storage.BlobStore, error) {
	switch driver := v.GetString("blob-driver"); driver {
	case "fs":
		return storage.NewFSStore(v.GetString("blob-path"))
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  v.GetString("minio-endpoint"),
			AccessKey: v.GetString("minio-access-key"),
			SecretKey: v.GetString("minio-secret-key"),
			Bucket:    v.GetString("minio-bucket"),
			UseSSL:    v.GetBool("minio-ssl"),
		})
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

func newCache(v *viper.Viper) (cache.Cache, func(), error) {
	url := v.GetString("redis-url")
	if url == "" {
		return cache.NewMemory(), func() {}, nil
	}
	rc, err := cache.NewRedis(url)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("leaderboard cache uses redis")
	return rc, func() { _ = rc.Close() }, nil
}

// newSuggester returns nil when no LLM is configured. An unreachable
// endpoint is logged and suggestions are disabled.
func newSuggester(ctx context.Context, v *viper.Viper) exam.Suggester {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Info("LLM grade suggestions disabled")
		return nil
	}
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), prompts.PromptVariant(variant))
	if err != nil {
		slog.Warn("LLM client unavailable, suggestions disabled", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed, suggestions disabled", "url", url, "error", err)
		return nil
	}
	slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	return client
}

// checkServeConfig rejects settings the server cannot start with.
func checkServeConfig(v *viper.Viper) error {
	if v.GetString("jwt-secret") == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or CODEDRILL_JWT_SECRET env var")
	}
	if d := v.GetDuration("expiry-interval"); d <= 0 {
		return fmt.Errorf("expiry interval must be positive, got %s", d)
	}
	if n := v.GetInt("suggest-parallel"); n < 1 {
		return fmt.Errorf("suggest parallelism must be at least 1, got %d", n)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := checkServeConfig(v); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	cat := catalog.NewService(db, nil)
	if err := seedAdmin(ctx, db, cat, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	secret := v.GetString("jwt-secret")

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	c, closeCache, err := newCache(v)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer closeCache()

	blobs, err := newBlobStore(ctx, v)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	board := leaderboard.NewService(db, c, v.GetDuration("leaderboard-ttl"))
	cat = catalog.NewService(db, board)
	examOpts := exam.Options{SuggestParallel: v.GetInt("suggest-parallel")}
	if s := newSuggester(ctx, v); s != nil {
		examOpts.LLM = s
	}
	if blobs != nil {
		examOpts.Blobs = blobs
	}
	exams := exam.NewService(db, examOpts)

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	cfg := model.ServerConfig{
		BasePath:        basePath,
		SecureCookies:   v.GetBool("secure-cookies"),
		CORSOrigins:     v.GetStringSlice("cors-origins"),
		PracticeCount:   v.GetInt("practice-count"),
		PracticeMinutes: v.GetInt("practice-minutes"),
	}

	drills := practice.NewService(db, practice.Options{
		DefaultCount:   cfg.PracticeCount,
		DefaultMinutes: cfg.PracticeMinutes,
	})

	h := handler.New(handler.Deps{
		Store:       db,
		Catalog:     cat,
		Exams:       exams,
		Practice:    drills,
		Leaderboard: board,
		Tokens:      auth.NewService(secret, v.GetDuration("jwt-ttl")),
	}, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		exams.RunExpiry(ctx, v.GetDuration("expiry-interval"))
		return nil
	})
	g.Go(func() error {
		slog.Info("starting server",
			"addr", srv.Addr,
			"db_driver", v.GetString("db-driver"),
			"lang", lang,
			"base_path", basePath,
			"blob_driver", v.GetString("blob-driver"),
			"llm", examOpts.LLM != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := actingUser(ctx, db, v.GetString("as"))
	if err != nil {
		return err
	}
	cat := catalog.NewService(db, nil)
	templateID := v.GetInt64("template-id")
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := cat.ImportBank(ctx, u, templateID, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if res.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: unchanged, skipped\n", path)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d questions\n", path, res.Imported)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := actingUser(ctx, db, v.GetString("as"))
	if err != nil {
		return err
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := exam.NewService(db, exam.Options{}).ExportCSV(ctx, u, v.GetInt64("template-id"), w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func runUser(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := catalog.NewService(db, nil).CreateUser(ctx, nil, catalog.NewUser{
		Username:    v.GetString("username"),
		DisplayName: v.GetString("display-name"),
		Email:       v.GetString("email"),
		Password:    v.GetString("password"),
		Role:        model.UserRole(v.GetString("role")),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", u.Role, u.Username, u.ID)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, cat *catalog.Service, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or CODEDRILL_ADMIN_PASSWORD env var")
	}
	if _, err := cat.CreateUser(ctx, nil, catalog.NewUser{
		Username:    "admin",
		DisplayName: "Administrator",
		Password:    password,
		Role:        model.UserRoleAdmin,
	}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
