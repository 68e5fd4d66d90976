package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSettingNotFound = errors.New("setting not found")
	ErrDbAccessFailed  = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetProject(projectId uuid.UUID, db *gorm.DB) (Project, error) {
	var project Project

	result := db.First(&project, "id = ?", projectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return project, ErrProjectNotFound
		}
		slog.Error("sql error in get project", "project_id", projectId, "error", result.Error)
		return project, ErrDbAccessFailed
	}

	return project, nil
}

func GetSession(token string, db *gorm.DB) (Session, error) {
	var session Session

	result := db.First(&session, "token = ?", token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return session, ErrSessionNotFound
		}
		slog.Error("sql error in get session", "error", result.Error)
		return session, ErrDbAccessFailed
	}

	return session, nil
}

// GetSetting returns the stored value for key, or defaultValue if the key
// has never been written.
func GetSetting(key, defaultValue string, db *gorm.DB) (string, error) {
	var setting Setting

	result := db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return defaultValue, nil
		}
		slog.Error("sql error in get setting", "key", key, "error", result.Error)
		return "", ErrDbAccessFailed
	}

	return setting.Value, nil
}

func SetSetting(key, value string, db *gorm.DB) error {
	result := db.Save(&Setting{Key: key, Value: value})
	if result.Error != nil {
		slog.Error("sql error in set setting", "key", key, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}

// GetCreatedUserIds returns the ids of users provisioned by the given user
// (one level only).
func GetCreatedUserIds(userId uuid.UUID, db *gorm.DB) ([]uuid.UUID, error) {
	var users []User
	result := db.Select("id").Find(&users, "created_by = ?", userId)
	if result.Error != nil {
		slog.Error("sql error in get created user ids", "user_id", userId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	ids := make([]uuid.UUID, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.Id)
	}
	return ids, nil
}
