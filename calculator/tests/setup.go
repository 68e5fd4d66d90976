package tests

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/schema"
	"provision_platform/calculator/services"
	"provision_platform/calculator/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.Platform
	api      chi.Router
	db       *gorm.DB
	sessions *auth.SessionManager
	storage  storage.Storage
}

const (
	adminName     = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnvWithSidecar(t *testing.T, sidecarUrl string) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Session{}, &schema.Project{}, &schema.Setting{},
		&schema.InvoiceFeedback{},
	)
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := auth.NewSessionManager(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.SessionManagerArgs{
			SessionTTL:    time.Hour,
			AdminName:     adminName,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	store := storage.NewSharedDisk(t.TempDir())

	platform := services.NewPlatform(db, sessions, store, sidecarUrl, []byte("290zcv02ai249"))

	return &testEnv{platform: platform, api: platform.Routes(), db: db, sessions: sessions, storage: store}
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithSidecar(t, "")
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newUser creates and logs in a regular user named by the given handle.
func (t *testEnv) newUser(name string) (client, error) {
	admin, err := t.adminClient()
	if err != nil {
		return client{}, err
	}

	login, err := admin.addUser(name, fmt.Sprintf("%v@mail.com", name), fmt.Sprintf("%v_password", name), "user")
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	err = c.login(login)
	return c, err
}

func (t *testEnv) newTeamLeader(name string) (client, error) {
	admin, err := t.adminClient()
	if err != nil {
		return client{}, err
	}

	login, err := admin.addUser(name, fmt.Sprintf("%v@mail.com", name), fmt.Sprintf("%v_password", name), "teamleader")
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	err = c.login(login)
	return c, err
}
