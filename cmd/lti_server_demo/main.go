package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	lti1p3 "github.com/aspire-lms/lti1p3-golang"
	"github.com/aspire-lms/lti1p3-golang/internal/helpers"
)

func main() {
	app := &cli.App{
		Name:    "lti-server-demo",
		Usage:   "demo LTI 1.3 tool server",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				EnvVars: []string{"LTI_ADDR"},
			},
			&cli.StringFlag{
				Name:    "db",
				Value:   "lti.db",
				EnvVars: []string{"LTI_DB"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
			},
		},
		Action: run,
	}

	app.RunAndExitOnError()
}

type Server struct {
	db    *gorm.DB
	cfg   *lti1p3.AdapterConfig
	cache *lti1p3.SessionCache
	keys  *lti1p3.KeyManager
	lti   *lti1p3.LTI
	guard *lti1p3.AuthGuard
}

func run(cmd *cli.Context) error {
	if err := godotenv.Load(cmd.String("env-file")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not load env file: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cmd.String("db")), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("could not open registration db: %w", err)
	}

	if err := db.AutoMigrate(&PlatformRegistration{}); err != nil {
		return fmt.Errorf("could not migrate registration db: %w", err)
	}

	s := &Server{db: db}

	cfg, err := lti1p3.NewAdapterConfig(lti1p3.AdapterConfigArgs{
		Tool: &lti1p3.ToolConfig{
			ClientName:    envOr("LTI_CLIENT_NAME", "ASPIRE LTI Demo"),
			DefaultDomain: envOr("LTI_DOMAIN", "http://localhost:8080"),
			Env:           os.Getenv("LTI_ENV"),
		},
		PlatformResolver: s.resolvePlatform,
	})
	if err != nil {
		return err
	}

	keys, err := lti1p3.NewKeyManager(lti1p3.KeyManagerArgs{Tool: cfg.Tool()})
	if err != nil {
		return err
	}

	cache := lti1p3.NewSessionCache()

	lti, err := lti1p3.NewLTI(lti1p3.LTIArgs{
		Config: cfg,
		Cache:  cache,
		Keys:   keys,
	})
	if err != nil {
		return err
	}

	guard, err := lti1p3.NewAuthGuard(lti1p3.AuthGuardArgs{
		Config: cfg,
		Cache:  cache,
	})
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.cache = cache
	s.keys = keys
	s.lti = lti
	s.guard = guard

	if cfg.Tool().Env == lti1p3.EnvLocal {
		if err := s.seedDevRegistration(cmd.String("addr")); err != nil {
			return err
		}
	}

	e := echo.New()

	e.Use(slogecho.New(slog.Default()))

	cookieSecret := os.Getenv("SESSION_SECRET")
	if cookieSecret == "" {
		cookieSecret = helpers.MustGenerateToken(32)
	}
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(cookieSecret))))

	tool := cfg.Tool()

	e.GET(tool.JWKPath, s.handlePublicJWK)
	e.POST("/session/refresh", s.handleSessionRefresh)
	e.POST(tool.InitiateLoginPath, s.handleOidcInitPost)
	e.GET(tool.InitiateLoginPath, s.handleOidcInitGet)
	e.POST(tool.AuthRedirectPath, s.handleOidcResponse)
	e.GET("/dev_key.json", s.handleDevKey)
	e.GET("/launch/info", s.handleLaunchInfo)

	e.GET("/dev/init", s.handleDevInit)
	e.GET("/dev/auth", s.handleDevAuth)
	e.POST("/dev/auth", s.handleDevAuth)

	httpd := http.Server{
		Addr:    cmd.String("addr"),
		Handler: e,
	}

	slog.Info("starting lti demo server", "addr", httpd.Addr, "env", tool.Env)

	if err := httpd.ListenAndServe(); err != nil {
		return err
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
