package auth

import (
	"errors"
	"fmt"
	"net/http"

	"provision_platform/calculator/schema"
	"provision_platform/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin() {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// ManagerOnly admits admins and team leaders. Team leaders share the
// provision/settings management and user management capabilities, scoped
// further by the individual handlers.
func ManagerOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin() && !user.IsTeamLeader() {
				http.Error(w, "user must be admin or team leader to access endpoint", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// VisibleUserIds computes the set of user ids whose projects the given user
// may see. Admins get nil, meaning no filtering. Team leaders see their own
// projects plus those of users they created (one level, no deeper
// hierarchy). Regular users see only their own.
func VisibleUserIds(user schema.User, db *gorm.DB) ([]uuid.UUID, error) {
	if user.IsAdmin() {
		return nil, nil
	}

	ids := []uuid.UUID{user.Id}

	if user.IsTeamLeader() {
		created, err := schema.GetCreatedUserIds(user.Id, db)
		if err != nil {
			return nil, err
		}
		ids = append(ids, created...)
	}

	return ids, nil
}

// CanAccessProject decides whether user may read or mutate the project,
// re-deriving the visible set on every call.
func CanAccessProject(project *schema.Project, user schema.User, db *gorm.DB) (bool, error) {
	visible, err := VisibleUserIds(user, db)
	if err != nil {
		return false, err
	}
	if visible == nil {
		return true, nil
	}
	for _, id := range visible {
		if project.CreatedBy == id {
			return true, nil
		}
	}
	return false, nil
}

// ProjectOwnerOnly guards routes with a {project_id} parameter. A missing
// project answers 404, an ownership mismatch answers 403; the distinction
// is deliberate and relied upon by clients.
func ProjectOwnerOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			projectId, err := utils.URLParamUUID(r, "project_id")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			project, err := schema.GetProject(projectId, db)
			if err != nil {
				if errors.Is(err, schema.ErrProjectNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			ok, err := CanAccessProject(&project, user, db)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, fmt.Sprintf("user %v does not have access to project %v", user.Id, projectId), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// CanManageUser decides whether the caller may edit or delete the target
// user. Admins manage anyone; a team leader manages only the users they
// created.
func CanManageUser(caller schema.User, target *schema.User) bool {
	if caller.IsAdmin() {
		return true
	}
	if caller.IsTeamLeader() {
		return target.CreatedBy != nil && *target.CreatedBy == caller.Id
	}
	return false
}
