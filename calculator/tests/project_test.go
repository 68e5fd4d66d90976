package tests

import (
	"errors"
	"testing"
)

func TestProjectRoundTrip(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	created, err := admin.createProject(map[string]interface{}{
		"projectName":      "Website redesign",
		"client":           "Acme s.r.o.",
		"numberOfMDs":      "10",
		"costPerMD":        "5000",
		"invoicedTotal":    "60000",
		"provisionPercent": 10.0,
	})
	if err != nil {
		t.Fatal(err)
	}

	if created.ProjectName != "Website redesign" || created.Currency != "CZK" || created.Status != "todo" {
		t.Fatalf("unexpected defaults in created project %v", created)
	}
	if created.CreatedBy.String() != admin.userId {
		t.Fatalf("createdBy should be the caller, got %v", created.CreatedBy)
	}
	if created.Cost != 50000 || created.InvoicedTotalCZK != 60000 || created.Provision != 1000 {
		t.Fatalf("unexpected derived fields: cost=%v totalCZK=%v provision=%v", created.Cost, created.InvoicedTotalCZK, created.Provision)
	}

	fetched, err := admin.getProject(created.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if fetched != created {
		t.Fatalf("fetched project differs from created: %v != %v", fetched, created)
	}

	if err := admin.deleteProject(created.Id.String()); err != nil {
		t.Fatal(err)
	}

	_, err = admin.getProject(created.Id.String())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted project should return 404: %v", err)
	}
}

func TestProjectEurConversion(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	project, err := admin.createProject(map[string]interface{}{
		"projectName":      "Export job",
		"currency":         "EUR",
		"invoicedTotal":    "1000",
		"exchangeRate":     "25.5",
		"numberOfMDs":      "2",
		"costPerMD":        "5000",
		"provisionPercent": 10.0,
	})
	if err != nil {
		t.Fatal(err)
	}

	if project.InvoicedTotalCZK != 25500 {
		t.Fatalf("expected converted total 25500, got %v", project.InvoicedTotalCZK)
	}
	if project.Provision != 1550 {
		t.Fatalf("expected provision 1550, got %v", project.Provision)
	}

	// A missing rate acts as 1 rather than erroring.
	project, err = admin.updateProject(project.Id.String(), map[string]interface{}{"exchangeRate": ""})
	if err != nil {
		t.Fatal(err)
	}
	if project.InvoicedTotalCZK != 1000 {
		t.Fatalf("blank exchange rate should fall back to 1, got total %v", project.InvoicedTotalCZK)
	}
}

func TestProjectUpdateRecomputesDerivedFields(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	project, err := admin.createProject(map[string]interface{}{
		"projectName":      "Recompute",
		"numberOfMDs":      "10",
		"costPerMD":        "5000",
		"invoicedTotal":    "60000",
		"provisionPercent": 10.0,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Submitted derived values are ignored, the server recomputes them.
	updated, err := admin.updateProject(project.Id.String(), map[string]interface{}{
		"numberOfMDs": "5",
		"cost":        123.0,
		"provision":   456.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Cost != 25000 {
		t.Fatalf("expected recomputed cost 25000, got %v", updated.Cost)
	}
	if updated.Provision != 3500 {
		t.Fatalf("expected recomputed provision 3500, got %v", updated.Provision)
	}

	// An empty patch is a no-op.
	unchanged, err := admin.updateProject(project.Id.String(), map[string]interface{}{})
	if err != nil {
		t.Fatal(err)
	}
	if unchanged != updated {
		t.Fatalf("empty update should not modify the project: %v != %v", unchanged, updated)
	}
}

func TestProjectNegativeProvision(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	// Cost exceeding the invoiced total must produce a negative provision,
	// not zero.
	project, err := admin.createProject(map[string]interface{}{
		"projectName":      "Loss maker",
		"numberOfMDs":      "10",
		"costPerMD":        "5000",
		"invoicedTotal":    "35000",
		"provisionPercent": 10.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if project.Provision != -1500 {
		t.Fatalf("expected provision -1500, got %v", project.Provision)
	}
}

func TestProjectVisibility(t *testing.T) {
	env := setupTestEnv(t)

	leader, err := env.newTeamLeader("boss")
	if err != nil {
		t.Fatal(err)
	}

	memberLogin, err := leader.addUser("worker", "worker@mail.com", "123", "user")
	if err != nil {
		t.Fatal(err)
	}
	member := env.newClient()
	if err := member.login(memberLogin); err != nil {
		t.Fatal(err)
	}

	outsider, err := env.newUser("outsider2")
	if err != nil {
		t.Fatal(err)
	}

	memberProject, err := member.createProject(map[string]interface{}{"projectName": "member project"})
	if err != nil {
		t.Fatal(err)
	}
	outsiderProject, err := outsider.createProject(map[string]interface{}{"projectName": "outsider project"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := leader.createProject(map[string]interface{}{"projectName": "leader project"}); err != nil {
		t.Fatal(err)
	}

	// Team leaders see their own projects plus those of users they created.
	visible, err := leader.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 2 {
		t.Fatalf("team leader should see 2 projects, got %d", len(visible))
	}

	own, err := member.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(own) != 1 || own[0].Id != memberProject.Id {
		t.Fatalf("user should only see their own project, got %v", own)
	}

	// Accessing a project the caller can see but does not have rights to
	// is a 403, an invisible one is still a 403 (the record exists).
	_, err = member.getProject(outsiderProject.Id.String())
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign project access should be forbidden: %v", err)
	}

	if _, err := leader.getProject(memberProject.Id.String()); err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	all, err := admin.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("admin should see all 3 projects, got %d", len(all))
	}
}

func TestProjectArchive(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	project, err := admin.createProject(map[string]interface{}{"projectName": "Old project"})
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.archiveProject(project.Id.String()); err != nil {
		t.Fatal(err)
	}

	archived, err := admin.getProject(project.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if !archived.Archived || archived.ArchivedAt == nil {
		t.Fatalf("project should be archived with a timestamp: %v", archived)
	}

	// Archived projects still appear in listings.
	projects, err := admin.listProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 {
		t.Fatalf("archived project missing from list: %v", projects)
	}

	if err := admin.unarchiveProject(project.Id.String()); err != nil {
		t.Fatal(err)
	}

	restored, err := admin.getProject(project.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if restored.Archived || restored.ArchivedAt != nil {
		t.Fatalf("project should be unarchived: %v", restored)
	}
}

func TestProjectDates(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	project, err := admin.createProject(map[string]interface{}{"projectName": "Dated"})
	if err != nil {
		t.Fatal(err)
	}

	err = admin.updateProjectDates(project.Id.String(), map[string]string{
		"paymentReceivedDate": "2026-02-01",
		"invoiceDueDate":      "2026-01-15",
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := admin.getProject(project.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if updated.PaymentReceivedDate != "2026-02-01" || updated.InvoiceDueDate != "2026-01-15" {
		t.Fatalf("dates not stored: %v", updated)
	}
}

func TestProjectCostPerMDSnapshot(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post("/settings/cost-per-md").Json(map[string]string{"costPerMD": "6000"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	project, err := admin.createProject(map[string]interface{}{
		"projectName": "Snapshot",
		"numberOfMDs": "2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if project.CostPerMD != "6000" || project.Cost != 12000 {
		t.Fatalf("expected cost per MD snapshot from settings, got %v / %v", project.CostPerMD, project.Cost)
	}

	// Later setting changes do not touch already saved projects.
	err = admin.Post("/settings/cost-per-md").Json(map[string]string{"costPerMD": "9999"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	unchanged, err := admin.getProject(project.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if unchanged.CostPerMD != "6000" || unchanged.Cost != 12000 {
		t.Fatalf("stored snapshot should be immutable: %v", unchanged)
	}
}

func TestProjectInvalidEnumsRejected(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	_, err = admin.createProject(map[string]interface{}{"projectName": "x", "currency": "USD"})
	if err == nil {
		t.Fatal("unknown currency should be rejected")
	}

	_, err = admin.createProject(map[string]interface{}{"projectName": "x", "status": "bogus"})
	if err == nil {
		t.Fatal("unknown status should be rejected")
	}

	_, err = admin.createProject(map[string]interface{}{"currency": "CZK"})
	if err == nil {
		t.Fatal("missing project name should be rejected")
	}
}

func TestProjectUnparsableAmountsDegradeToZero(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	project, err := admin.createProject(map[string]interface{}{
		"projectName":      "Messy input",
		"numberOfMDs":      "abc",
		"costPerMD":        "5000",
		"invoicedTotal":    "",
		"provisionPercent": 10.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if project.Cost != 0 || project.InvoicedTotalCZK != 0 || project.Provision != 0 {
		t.Fatalf("unparsable inputs should degrade to zero, got %v", project)
	}
}
