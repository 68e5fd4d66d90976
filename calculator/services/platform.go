package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/extraction"
	"provision_platform/calculator/storage"
	"provision_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Platform struct {
	user     UserService
	project  ProjectService
	settings SettingsService
	invoice  InvoiceService
	crm      CrmService

	db       *gorm.DB
	sessions *auth.SessionManager
	stop     chan bool
}

func NewPlatform(
	db *gorm.DB, sessions *auth.SessionManager, store storage.Storage, sidecarUrl string, secret []byte,
) Platform {
	serviceAuth := auth.NewJwtManager(secret)
	sidecar := extraction.NewSidecarClient(sidecarUrl, serviceAuth)

	return Platform{
		user:     UserService{db: db, sessions: sessions},
		project:  ProjectService{db: db, sessions: sessions},
		settings: SettingsService{db: db, sessions: sessions},
		invoice: InvoiceService{
			db:       db,
			sessions: sessions,
			store:    store,
			sidecar:  sidecar,
			jwt:      serviceAuth,
		},
		crm:      CrmService{db: db, sessions: sessions},
		db:       db,
		sessions: sessions,
		stop:     make(chan bool, 1),
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/project", p.project.Routes())
	r.Mount("/settings", p.settings.Routes())
	r.Mount("/invoice", p.invoice.Routes())
	r.Mount("/crm", p.crm.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

func (p *Platform) sweepSessions() {
	deleted, err := p.sessions.DeleteExpired()
	if err != nil {
		slog.Error("session sweep: error deleting expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		expiredSessionsMetric.Add(float64(deleted))
		slog.Info("session sweep: removed expired sessions", "count", deleted)
	}
}

// SessionSweep periodically evicts expired sessions so that logins do not
// accumulate in the database forever. Runs until StopSessionSweep is called.
func (p *Platform) SessionSweep(interval time.Duration) {
	slog.Info("session sweep: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweepSessions()
		case <-p.stop:
			slog.Info("session sweep: process stopped")
			return
		}
	}
}

func (p *Platform) StopSessionSweep() {
	close(p.stop)
}
