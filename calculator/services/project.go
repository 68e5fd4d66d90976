package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/calc"
	"provision_platform/calculator/schema"
	"provision_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectService struct {
	db       *gorm.DB
	sessions *auth.SessionManager
}

func (s *ProjectService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.sessions.AuthMiddleware()...)

	r.Get("/list", s.List)
	r.Post("/create", s.Create)

	r.Route("/{project_id}", func(r chi.Router) {
		r.Use(auth.ProjectOwnerOnly(s.db))

		r.Get("/", s.Get)
		r.Post("/", s.Update)
		r.Delete("/", s.Delete)

		r.Post("/archive", s.Archive)
		r.Post("/unarchive", s.Unarchive)

		r.Post("/dates", s.UpdateDates)
	})

	return r
}

type ProjectInfo struct {
	Id uuid.UUID `json:"id"`

	ProjectName string `json:"projectName"`
	ProjectType string `json:"projectType"`
	Client      string `json:"client,omitempty"`

	Currency      string `json:"currency"`
	InvoicedTotal string `json:"invoicedTotal"`
	NumberOfMDs   string `json:"numberOfMDs"`
	MdRate        string `json:"mdRate,omitempty"`
	ExchangeRate  string `json:"exchangeRate,omitempty"`
	CostPerMD     string `json:"costPerMD"`

	ProvisionPercent float64 `json:"provisionPercent"`

	Cost             float64 `json:"cost"`
	Provision        float64 `json:"provision"`
	InvoicedTotalCZK float64 `json:"invoicedTotalCZK"`

	CustomProfit string `json:"customProfit,omitempty"`
	CustomCost   string `json:"customCost,omitempty"`

	Status string `json:"status"`

	PaymentReceivedDate string `json:"paymentReceivedDate,omitempty"`
	InvoiceDueDate      string `json:"invoiceDueDate,omitempty"`

	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`

	CrmDealId   string     `json:"crmDealId,omitempty"`
	CrmSyncedAt *time.Time `json:"crmSyncedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy uuid.UUID `json:"createdBy"`
}

func convertToProjectInfo(project *schema.Project) ProjectInfo {
	return ProjectInfo{
		Id:                  project.Id,
		ProjectName:         project.ProjectName,
		ProjectType:         project.ProjectType,
		Client:              project.Client,
		Currency:            project.Currency,
		InvoicedTotal:       project.InvoicedTotal,
		NumberOfMDs:         project.NumberOfMDs,
		MdRate:              project.MdRate,
		ExchangeRate:        project.ExchangeRate,
		CostPerMD:           project.CostPerMD,
		ProvisionPercent:    project.ProvisionPercent,
		Cost:                project.Cost,
		Provision:           project.Provision,
		InvoicedTotalCZK:    project.InvoicedTotalCZK,
		CustomProfit:        project.CustomProfit,
		CustomCost:          project.CustomCost,
		Status:              project.Status,
		PaymentReceivedDate: project.PaymentReceivedDate,
		InvoiceDueDate:      project.InvoiceDueDate,
		Archived:            project.Archived,
		ArchivedAt:          project.ArchivedAt,
		CrmDealId:           project.CrmDealId,
		CrmSyncedAt:         project.CrmSyncedAt,
		CreatedAt:           project.CreatedAt,
		CreatedBy:           project.CreatedBy,
	}
}

// deriveFields recomputes the derived fields from the project's raw inputs.
// The server is the only producer of derived values; anything the caller
// submits for cost/provision/invoicedTotalCZK is discarded.
func deriveFields(project *schema.Project) {
	derived := calc.Derive(calc.Inputs{
		NumberOfMDs:      project.NumberOfMDs,
		CostPerMD:        project.CostPerMD,
		InvoicedTotal:    project.InvoicedTotal,
		Currency:         project.Currency,
		ExchangeRate:     project.ExchangeRate,
		ProvisionPercent: project.ProvisionPercent,
	})
	project.Cost = derived.Cost
	project.Provision = derived.Provision
	project.InvoicedTotalCZK = derived.InvoicedTotalCZK
}

func (s *ProjectService) List(w http.ResponseWriter, r *http.Request) {
	defer timeOp(projectListMetric)()

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	visible, err := auth.VisibleUserIds(user, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing projects: %v", err), http.StatusInternalServerError)
		return
	}

	var projects []schema.Project
	var result *gorm.DB
	if visible == nil {
		result = s.db.Order("created_at desc").Find(&projects)
	} else {
		result = s.db.Order("created_at desc").Find(&projects, "created_by IN ?", visible)
	}

	if result.Error != nil {
		slog.Error("sql error listing projects", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing projects: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	// Archived records are included, filtering is the client's concern.
	infos := make([]ProjectInfo, 0, len(projects))
	for _, project := range projects {
		infos = append(infos, convertToProjectInfo(&project))
	}
	utils.WriteJsonResponse(w, infos)
}

type createProjectRequest struct {
	Id *uuid.UUID `json:"id"`

	ProjectName string `json:"projectName"`
	ProjectType string `json:"projectType"`
	Client      string `json:"client"`

	Currency      string `json:"currency"`
	InvoicedTotal string `json:"invoicedTotal"`
	NumberOfMDs   string `json:"numberOfMDs"`
	MdRate        string `json:"mdRate"`
	ExchangeRate  string `json:"exchangeRate"`
	CostPerMD     string `json:"costPerMD"`

	ProvisionPercent float64 `json:"provisionPercent"`

	CustomProfit string `json:"customProfit"`
	CustomCost   string `json:"customCost"`

	Status string `json:"status"`

	PaymentReceivedDate string `json:"paymentReceivedDate"`
	InvoiceDueDate      string `json:"invoiceDueDate"`

	CreatedAt *time.Time `json:"createdAt"`
}

func (s *ProjectService) Create(w http.ResponseWriter, r *http.Request) {
	defer timeOp(projectCreateMetric)()

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	project, err := s.buildProject(&params, user)
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating project: %v", err), GetResponseCode(err))
		return
	}

	result := s.db.Create(&project)
	if result.Error != nil {
		slog.Error("sql error creating project", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating project: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	info := convertToProjectInfo(&project)
	utils.WriteJsonResponse(w, info)
}

func (s *ProjectService) buildProject(params *createProjectRequest, user schema.User) (schema.Project, error) {
	if params.ProjectName == "" {
		return schema.Project{}, CodedError(errors.New("projectName must be specified"), http.StatusUnprocessableEntity)
	}

	projectType := params.ProjectType
	if projectType == "" {
		projectType = schema.ProjectTypeRegular
	}
	if err := schema.CheckValidProjectType(projectType); err != nil {
		return schema.Project{}, CodedError(err, http.StatusUnprocessableEntity)
	}

	currency := params.Currency
	if currency == "" {
		currency = schema.CurrencyCZK
	}
	if err := schema.CheckValidCurrency(currency); err != nil {
		return schema.Project{}, CodedError(err, http.StatusUnprocessableEntity)
	}

	status := params.Status
	if status == "" {
		status = schema.StatusTodo
	}
	if err := schema.CheckValidStatus(status); err != nil {
		return schema.Project{}, CodedError(err, http.StatusUnprocessableEntity)
	}

	// The cost-per-MD setting is snapshotted into the record at save time
	// so later setting changes do not silently rewrite old projects.
	costPerMD := params.CostPerMD
	if costPerMD == "" {
		value, err := schema.GetSetting(schema.SettingCostPerMD, schema.DefaultCostPerMD, s.db)
		if err != nil {
			return schema.Project{}, CodedError(err, http.StatusInternalServerError)
		}
		costPerMD = value
	}

	projectId := uuid.New()
	if params.Id != nil && *params.Id != uuid.Nil {
		projectId = *params.Id
	}

	createdAt := time.Now().UTC()
	if params.CreatedAt != nil && !params.CreatedAt.IsZero() {
		createdAt = *params.CreatedAt
	}

	project := schema.Project{
		Id:                  projectId,
		ProjectName:         params.ProjectName,
		ProjectType:         projectType,
		Client:              params.Client,
		Currency:            currency,
		InvoicedTotal:       params.InvoicedTotal,
		NumberOfMDs:         params.NumberOfMDs,
		MdRate:              params.MdRate,
		ExchangeRate:        params.ExchangeRate,
		CostPerMD:           costPerMD,
		ProvisionPercent:    params.ProvisionPercent,
		CustomProfit:        params.CustomProfit,
		CustomCost:          params.CustomCost,
		Status:              status,
		PaymentReceivedDate: params.PaymentReceivedDate,
		InvoiceDueDate:      params.InvoiceDueDate,
		CreatedAt:           createdAt,
		// Caller identity always wins, whatever the body claims.
		CreatedBy: user.Id,
	}

	deriveFields(&project)

	return project, nil
}

func (s *ProjectService) Get(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	project, err := schema.GetProject(projectId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting project: %v", err), http.StatusInternalServerError)
		return
	}

	info := convertToProjectInfo(&project)
	utils.WriteJsonResponse(w, info)
}

type updateProjectRequest struct {
	ProjectName *string `json:"projectName"`
	ProjectType *string `json:"projectType"`
	Client      *string `json:"client"`

	Currency      *string `json:"currency"`
	InvoicedTotal *string `json:"invoicedTotal"`
	NumberOfMDs   *string `json:"numberOfMDs"`
	MdRate        *string `json:"mdRate"`
	ExchangeRate  *string `json:"exchangeRate"`
	CostPerMD     *string `json:"costPerMD"`

	ProvisionPercent *float64 `json:"provisionPercent"`

	CustomProfit *string `json:"customProfit"`
	CustomCost   *string `json:"customCost"`

	Status *string `json:"status"`

	PaymentReceivedDate *string `json:"paymentReceivedDate"`
	InvoiceDueDate      *string `json:"invoiceDueDate"`
}

func (s *ProjectService) Update(w http.ResponseWriter, r *http.Request) {
	defer timeOp(projectUpdateMetric)()

	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var updated schema.Project

	err = s.db.Transaction(func(txn *gorm.DB) error {
		project, err := schema.GetProject(projectId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrProjectNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.ProjectName != nil {
			project.ProjectName = *params.ProjectName
		}
		if params.ProjectType != nil {
			if err := schema.CheckValidProjectType(*params.ProjectType); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			project.ProjectType = *params.ProjectType
		}
		if params.Client != nil {
			project.Client = *params.Client
		}
		if params.Currency != nil {
			if err := schema.CheckValidCurrency(*params.Currency); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			project.Currency = *params.Currency
		}
		if params.InvoicedTotal != nil {
			project.InvoicedTotal = *params.InvoicedTotal
		}
		if params.NumberOfMDs != nil {
			project.NumberOfMDs = *params.NumberOfMDs
		}
		if params.MdRate != nil {
			project.MdRate = *params.MdRate
		}
		if params.ExchangeRate != nil {
			project.ExchangeRate = *params.ExchangeRate
		}
		if params.CostPerMD != nil {
			project.CostPerMD = *params.CostPerMD
		}
		if params.ProvisionPercent != nil {
			project.ProvisionPercent = *params.ProvisionPercent
		}
		if params.CustomProfit != nil {
			project.CustomProfit = *params.CustomProfit
		}
		if params.CustomCost != nil {
			project.CustomCost = *params.CustomCost
		}
		if params.Status != nil {
			if err := schema.CheckValidStatus(*params.Status); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			project.Status = *params.Status
		}
		if params.PaymentReceivedDate != nil {
			project.PaymentReceivedDate = *params.PaymentReceivedDate
		}
		if params.InvoiceDueDate != nil {
			project.InvoiceDueDate = *params.InvoiceDueDate
		}

		// Id, CreatedBy, and CreatedAt are never patchable. Derived fields
		// are recomputed so mutated inputs can never leave the record
		// inconsistent.
		deriveFields(&project)

		result := txn.Save(&project)
		if result.Error != nil {
			slog.Error("sql error updating project", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		updated = project
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating project %v: %v", projectId, err), GetResponseCode(err))
		return
	}

	info := convertToProjectInfo(&updated)
	utils.WriteJsonResponse(w, info)
}

type updateDatesRequest struct {
	PaymentReceivedDate *string `json:"paymentReceivedDate"`
	InvoiceDueDate      *string `json:"invoiceDueDate"`
}

func (s *ProjectService) UpdateDates(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateDatesRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.PaymentReceivedDate != nil {
		updates["payment_received_date"] = *params.PaymentReceivedDate
	}
	if params.InvoiceDueDate != nil {
		updates["invoice_due_date"] = *params.InvoiceDueDate
	}

	if len(updates) == 0 {
		http.Error(w, "no date fields specified", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkProjectExists(txn, projectId); err != nil {
			return err
		}

		result := txn.Model(&schema.Project{Id: projectId}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating project dates", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating project dates: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *ProjectService) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updates := map[string]interface{}{"archived": archived}
	if archived {
		now := time.Now().UTC()
		updates["archived_at"] = &now
	} else {
		updates["archived_at"] = nil
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkProjectExists(txn, projectId); err != nil {
			return err
		}

		result := txn.Model(&schema.Project{Id: projectId}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error toggling project archive flag", "project_id", projectId, "archived", archived, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating archive state for project %v: %v", projectId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *ProjectService) Archive(w http.ResponseWriter, r *http.Request) {
	s.setArchived(w, r, true)
}

func (s *ProjectService) Unarchive(w http.ResponseWriter, r *http.Request) {
	s.setArchived(w, r, false)
}

func (s *ProjectService) Delete(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkProjectExists(txn, projectId); err != nil {
			return err
		}

		result := txn.Delete(&schema.Project{Id: projectId})
		if result.Error != nil {
			slog.Error("sql error deleting project", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting project %v: %v", projectId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
