package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/schema"
	"provision_platform/calculator/services"
	"provision_platform/calculator/storage"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogmulti "github.com/samber/slog-multi"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

/**
 * ==========================================================================
 * ==== All variables that are used by the calculator must be loaded     ====
 * ==== here. This is to make the data flow clear so that a user can see ====
 * ==== what variables are exposed, and how the values are propagated    ====
 * ==== through the system.                                              ====
 * ==========================================================================
 */
type calculatorEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	ShareDir    string `env:"SHARE_DIR,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`

	AdminName     string `env:"ADMIN_NAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	SidecarUrl string `env:"EXTRACTION_SIDECAR_URL"`

	AllowedOrigin string        `env:"ALLOWED_ORIGIN" envDefault:"*"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`
}

func loadEnv() calculatorEnv {
	cfg := calculatorEnv{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load environment variables: %v", err)
	}
	return cfg
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	if err := godotenv.Load(envFile); err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func initLogging(logFile *os.File) {
	jsonHandler := slog.NewJSONHandler(logFile, nil).
		WithAttrs([]slog.Attr{slog.String("service_type", "calculator")})
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	slog.SetDefault(slog.New(slogmulti.Fanout(jsonHandler, textHandler)))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initDb(databaseUri string) *gorm.DB {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseUri, "postgres") {
		dialector = postgres.Open(postgresDsn(databaseUri))
	} else {
		dialector = sqlite.Open(databaseUri)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Session{}, &schema.Project{}, &schema.Setting{},
		&schema.InvoiceFeedback{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env := loadEnv()

	err := os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/calculator.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(env.DatabaseUri)

	sessions, err := auth.NewSessionManager(db, auth.NewAuditLogger(auditLog), auth.SessionManagerArgs{
		SessionTTL:    env.SessionTTL,
		AdminName:     env.AdminName,
		AdminEmail:    env.AdminEmail,
		AdminPassword: env.AdminPassword,
	})
	if err != nil {
		log.Fatalf("error creating session manager: %v", err)
	}

	sharedStorage := storage.NewSharedDisk(env.ShareDir)

	platform := services.NewPlatform(db, sessions, sharedStorage, env.SidecarUrl, []byte(env.JwtSecret))

	go platform.SessionSweep(env.SweepInterval)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{env.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", platform.Routes())
	r.Handle("/metrics", promhttp.Handler())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	platform.StopSessionSweep()
}
