package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/schema"
	"provision_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	sessions *auth.SessionManager
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", s.Login)

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.AuthMiddleware()...)

		r.Post("/logout", s.Logout)
		r.Get("/info", s.Info)
		r.Get("/list", s.List)

		r.Group(func(r chi.Router) {
			r.Use(auth.ManagerOnly())

			r.Post("/create", s.CreateUser)
			r.Post("/{user_id}", s.UpdateUser)
			r.Delete("/{user_id}", s.DeleteUser)
		})
	})

	return r
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	defer timeOp(loginMetric)()

	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.sessions.Login(email, password)
	if err != nil {
		// Invalid email and invalid password are deliberately
		// indistinguishable to the caller.
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, "login failed: invalid login credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.Token})
}

func (s *UserService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	token = token[len("Bearer "):]

	if err := s.sessions.Logout(token); err != nil {
		http.Error(w, fmt.Sprintf("logout failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

type UserInfo struct {
	Id             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	TeamLeaderName string     `json:"team_leader_name,omitempty"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:             user.Id,
		Email:          user.Email,
		Name:           user.Name,
		Role:           user.Role,
		CreatedBy:      user.CreatedBy,
		TeamLeaderName: user.TeamLeaderName,
	}
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := convertToUserInfo(&user)
	utils.WriteJsonResponse(w, info)
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var users []schema.User
	var result *gorm.DB
	if user.IsAdmin() {
		result = s.db.Find(&users)
	} else if user.IsTeamLeader() {
		result = s.db.Find(&users, "id = ? or created_by = ?", user.Id, user.Id)
	} else {
		users = []schema.User{user}
	}

	if result != nil && result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createUserResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" || params.Password == "" {
		http.Error(w, "email and password must be specified", http.StatusUnprocessableEntity)
		return
	}

	role := params.Role
	if role == "" {
		role = schema.RoleUser
	}
	if err := schema.CheckValidRole(role); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	// Team leaders may only provision plain users; the created account
	// records its creator so the team leader can manage it later.
	if caller.IsTeamLeader() && role != schema.RoleUser {
		http.Error(w, "team leaders may only create users with role 'user'", http.StatusForbidden)
		return
	}

	hashedPwd, err := auth.HashPassword(params.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	newUser := schema.User{
		Id:       uuid.New(),
		Name:     params.Name,
		Email:    params.Email,
		Password: hashedPwd,
		Role:     role,
	}
	if caller.IsTeamLeader() {
		createdBy := caller.Id
		newUser.CreatedBy = &createdBy
		newUser.TeamLeaderName = caller.Name
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "email = ?", params.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing email", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(auth.ErrEmailAlreadyInUse, http.StatusConflict)
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			slog.Error("sql error creating new user entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createUserResponse{UserId: newUser.Id})
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !auth.CanManageUser(caller, &user) {
			return CodedError(fmt.Errorf("user %v cannot manage user %v", caller.Id, userId), http.StatusForbidden)
		}

		if params.Name != nil {
			user.Name = *params.Name
		}
		if params.Email != nil && *params.Email != user.Email {
			var existingUser schema.User
			result := txn.Limit(1).Find(&existingUser, "email = ?", *params.Email)
			if result.Error != nil {
				slog.Error("sql error checking for existing email", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected != 0 {
				return CodedError(auth.ErrEmailAlreadyInUse, http.StatusConflict)
			}
			user.Email = *params.Email
		}
		if params.Role != nil {
			if err := schema.CheckValidRole(*params.Role); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			if caller.IsTeamLeader() && *params.Role != schema.RoleUser {
				return CodedError(errors.New("team leaders may only assign role 'user'"), http.StatusForbidden)
			}
			user.Role = *params.Role
		}
		if params.Password != nil {
			hashedPwd, err := auth.HashPassword(*params.Password)
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			user.Password = hashedPwd
		}

		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !auth.CanManageUser(caller, &user) {
			return CodedError(fmt.Errorf("user %v cannot manage user %v", caller.Id, userId), http.StatusForbidden)
		}

		if user.IsAdmin() {
			var count int64
			result := txn.Model(&schema.User{}).Where("role = ?", schema.RoleAdmin).Count(&count)
			if result.Error != nil {
				slog.Error("sql error counting existing admins", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if count < 2 {
				return CodedError(fmt.Errorf("cannot delete admin %v since there would be no admins left", userId), http.StatusUnprocessableEntity)
			}
		}

		// Any live sessions for the deleted user become invalid immediately.
		result := txn.Where("user_id = ?", userId).Delete(&schema.Session{})
		if result.Error != nil {
			slog.Error("sql error deleting user sessions", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.User{Id: userId})
		if result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
