package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/calc"
	"provision_platform/calculator/crm"
	"provision_platform/calculator/schema"
	"provision_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CrmService struct {
	db       *gorm.DB
	sessions *auth.SessionManager
}

func (s *CrmService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.sessions.AuthMiddleware()...)
	r.Use(auth.ManagerOnly())

	r.Get("/config", s.GetConfig)
	r.Post("/config", s.SetConfig)
	r.Post("/test", s.TestConnection)
	r.Post("/sync", s.Sync)
	r.Post("/import", s.Import)

	return r
}

var errCrmNotConfigured = errors.New("crm connection is not configured")

// client builds a CRM client from the stored connection settings.
func (s *CrmService) client() (*crm.Client, error) {
	baseUrl, err := schema.GetSetting(schema.SettingCrmBaseUrl, "", s.db)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	if baseUrl == "" {
		return nil, CodedError(errCrmNotConfigured, http.StatusUnprocessableEntity)
	}
	apiKey, err := schema.GetSetting(schema.SettingCrmApiKey, "", s.db)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return crm.NewClient(baseUrl, apiKey), nil
}

type crmConfigResponse struct {
	BaseUrl    string `json:"baseUrl"`
	ApiKeySet  bool   `json:"apiKeySet"`
	Configured bool   `json:"configured"`
}

func (s *CrmService) GetConfig(w http.ResponseWriter, r *http.Request) {
	baseUrl, err := schema.GetSetting(schema.SettingCrmBaseUrl, "", s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading crm config: %v", err), http.StatusInternalServerError)
		return
	}
	apiKey, err := schema.GetSetting(schema.SettingCrmApiKey, "", s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading crm config: %v", err), http.StatusInternalServerError)
		return
	}

	// The api key itself is never echoed back.
	utils.WriteJsonResponse(w, crmConfigResponse{
		BaseUrl:    baseUrl,
		ApiKeySet:  apiKey != "",
		Configured: baseUrl != "",
	})
}

type crmConfigRequest struct {
	BaseUrl string `json:"baseUrl"`
	ApiKey  string `json:"apiKey"`
}

func (s *CrmService) SetConfig(w http.ResponseWriter, r *http.Request) {
	var params crmConfigRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.BaseUrl == "" {
		http.Error(w, "baseUrl must be specified", http.StatusUnprocessableEntity)
		return
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := schema.SetSetting(schema.SettingCrmBaseUrl, params.BaseUrl, txn); err != nil {
			return err
		}
		return schema.SetSetting(schema.SettingCrmApiKey, params.ApiKey, txn)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error saving crm config: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func (s *CrmService) TestConnection(w http.ResponseWriter, r *http.Request) {
	client, err := s.client()
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := client.Ping(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("crm connection test failed: %v", err), http.StatusBadGateway)
		return
	}

	utils.WriteSuccess(w)
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// importDeals ingests won deals as draft projects. Deals not yet marked
// won are skipped. A deal already imported (matched on crm_deal_id) is
// never duplicated; with refreshExisting the match is restamped with the
// sync time and latest client name instead.
func (s *CrmService) importDeals(r *http.Request, refreshExisting bool) (importResponse, error) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return importResponse{}, CodedError(err, http.StatusInternalServerError)
	}

	client, err := s.client()
	if err != nil {
		return importResponse{}, err
	}

	deals, err := client.ListDeals(r.Context())
	if err != nil {
		return importResponse{}, CodedError(err, http.StatusBadGateway)
	}

	costPerMD, err := schema.GetSetting(schema.SettingCostPerMD, schema.DefaultCostPerMD, s.db)
	if err != nil {
		return importResponse{}, CodedError(err, http.StatusInternalServerError)
	}

	now := time.Now().UTC()
	var report importResponse

	err = s.db.Transaction(func(txn *gorm.DB) error {
		for _, deal := range deals {
			if deal.Id == "" || deal.WonAt == "" {
				report.Skipped++
				continue
			}

			var existing schema.Project
			result := txn.Where("crm_deal_id = ?", deal.Id).Limit(1).Find(&existing)
			if result.Error != nil {
				slog.Error("sql error checking for imported deal", "deal_id", deal.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			if result.RowsAffected > 0 {
				if refreshExisting {
					updates := map[string]interface{}{"client": deal.Client, "crm_synced_at": &now}
					if err := txn.Model(&existing).Updates(updates).Error; err != nil {
						slog.Error("sql error refreshing imported deal", "deal_id", deal.Id, "error", err)
						return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
					}
				}
				report.Skipped++
				continue
			}

			project := dealToProject(deal, user.Id, costPerMD, now)
			if err := txn.Create(&project).Error; err != nil {
				slog.Error("sql error importing deal", "deal_id", deal.Id, "error", err)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			report.Imported++
		}
		return nil
	})
	if err != nil {
		return importResponse{}, err
	}

	crmImportedDealsMetric.Add(float64(report.Imported))
	return report, nil
}

func dealToProject(deal crm.Deal, createdBy uuid.UUID, costPerMD string, now time.Time) schema.Project {
	currency := deal.Currency
	if schema.CheckValidCurrency(currency) != nil {
		currency = schema.CurrencyCZK
	}

	name := deal.Title
	if name == "" {
		name = fmt.Sprintf("CRM deal %v", deal.Id)
	}

	project := schema.Project{
		Id:            uuid.New(),
		ProjectName:   name,
		ProjectType:   schema.ProjectTypeRegular,
		Client:        deal.Client,
		Currency:      currency,
		InvoicedTotal: calc.FormatAmount(deal.Value),
		CostPerMD:     costPerMD,
		// Imported drafts wait for a human to fill in MDs and rates.
		Status:      schema.StatusPendingReview,
		CrmDealId:   deal.Id,
		CrmSyncedAt: &now,
		CreatedAt:   now,
		CreatedBy:   createdBy,
	}

	deriveFields(&project)

	return project
}

func (s *CrmService) Import(w http.ResponseWriter, r *http.Request) {
	report, err := s.importDeals(r, false)
	if err != nil {
		http.Error(w, fmt.Sprintf("error importing crm deals: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, report)
}

func (s *CrmService) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := s.importDeals(r, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error syncing crm deals: %v", err), GetResponseCode(err))
		return
	}
	utils.WriteJsonResponse(w, report)
}
