package tests

import (
	"errors"
	"testing"
	"time"

	"provision_platform/calculator/schema"
)

func TestLoginAndUserInfo(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	info, err := admin.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Email != adminEmail || info.Name != adminName || info.Role != "admin" {
		t.Fatalf("invalid admin info %v", info)
	}
	if info.Id.String() != admin.userId {
		t.Fatalf("user id mismatch: %v != %v", info.Id, admin.userId)
	}

	bad := env.newClient()
	err = bad.login(loginInfo{Email: adminEmail, Password: "wrong_password"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login with wrong password should fail: %v", err)
	}

	err = bad.login(loginInfo{Email: "nobody@mail.com", Password: adminPassword})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login with unknown email should fail: %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.userInfo(); err != nil {
		t.Fatal(err)
	}

	if err := admin.logout(); err != nil {
		t.Fatal(err)
	}

	_, err = admin.userInfo()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("session should be invalid after logout: %v", err)
	}
}

func TestExpiredSessionIsRejectedAndSwept(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.userInfo(); err != nil {
		t.Fatal(err)
	}

	backdated := time.Now().UTC().Add(-time.Minute)
	result := env.db.Model(&schema.Session{}).
		Where("token = ?", admin.authToken).
		Update("expires_at", backdated)
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	if result.RowsAffected != 1 {
		t.Fatalf("expected to backdate 1 session, got %d", result.RowsAffected)
	}

	_, err = admin.userInfo()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired session should be rejected: %v", err)
	}

	evicted, err := env.sessions.DeleteExpired()
	if err != nil {
		t.Fatal(err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 evicted session, got %d", evicted)
	}

	var remaining int64
	if err := env.db.Model(&schema.Session{}).Count(&remaining).Error; err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Fatalf("expired session should be gone, %d rows remain", remaining)
	}
}

func TestCreateUserPermissions(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("plainuser")
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.addUser("xyz", "xyz@mail.com", "123", "user")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("regular users cannot create users: %v", err)
	}

	leader, err := env.newTeamLeader("leader")
	if err != nil {
		t.Fatal(err)
	}

	_, err = leader.addUser("xyz", "xyz@mail.com", "123", "admin")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("team leaders cannot create admins: %v", err)
	}

	login, err := leader.addUser("xyz", "xyz@mail.com", "123", "user")
	if err != nil {
		t.Fatal(err)
	}

	created := env.newClient()
	if err := created.login(login); err != nil {
		t.Fatal(err)
	}

	info, err := created.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != "user" || info.CreatedBy == nil || info.CreatedBy.String() != leader.userId {
		t.Fatalf("invalid created user info %v", info)
	}
	if info.TeamLeaderName != "leader" {
		t.Fatalf("expected team leader name to be stamped, got %q", info.TeamLeaderName)
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.addUser("abc", "abc@mail.com", "123", "user"); err != nil {
		t.Fatal(err)
	}

	_, err = admin.addUser("other", "abc@mail.com", "456", "user")
	if err == nil {
		t.Fatal("duplicate email should be rejected")
	}
}

func TestListUsersVisibility(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	leader, err := env.newTeamLeader("lead1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := leader.addUser("member1", "member1@mail.com", "123", "user"); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.addUser("outsider", "outsider@mail.com", "123", "user"); err != nil {
		t.Fatal(err)
	}

	all, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("admin should see all 4 users, got %d", len(all))
	}

	visible, err := leader.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 2 {
		t.Fatalf("team leader should see self and created users, got %d", len(visible))
	}
	for _, info := range visible {
		if info.Email != "lead1@mail.com" && info.Email != "member1@mail.com" {
			t.Fatalf("unexpected user %v visible to team leader", info.Email)
		}
	}

	member := env.newClient()
	if err := member.login(loginInfo{Email: "member1@mail.com", Password: "123"}); err != nil {
		t.Fatal(err)
	}
	own, err := member.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].Email != "member1@mail.com" {
		t.Fatalf("regular user should only see themselves, got %v", own)
	}
}

func TestDeleteUser(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	leader, err := env.newTeamLeader("lead2")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.addUser("victim", "victim@mail.com", "123", "user"); err != nil {
		t.Fatal(err)
	}

	victim := env.newClient()
	if err := victim.login(loginInfo{Email: "victim@mail.com", Password: "123"}); err != nil {
		t.Fatal(err)
	}

	// The victim was created by the admin, the team leader has no authority
	// over them.
	err = leader.deleteUser(victim.userId)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("team leader cannot delete users they did not create: %v", err)
	}

	if err := admin.deleteUser(victim.userId); err != nil {
		t.Fatal(err)
	}

	// Sessions of deleted users stop working immediately.
	_, err = victim.userInfo()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("deleted user session should be rejected: %v", err)
	}

	err = admin.deleteUser(admin.userId)
	if err == nil {
		t.Fatal("deleting the last admin should be rejected")
	}
}
