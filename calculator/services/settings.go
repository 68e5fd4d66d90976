package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"provision_platform/calculator/auth"
	"provision_platform/calculator/schema"
	"provision_platform/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type SettingsService struct {
	db       *gorm.DB
	sessions *auth.SessionManager
}

func (s *SettingsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.sessions.AuthMiddleware()...)

	r.Get("/cost-per-md", s.GetCostPerMD)
	r.Get("/provision-percentages", s.GetProvisionPercentages)

	r.Group(func(r chi.Router) {
		r.Use(auth.ManagerOnly())

		r.Post("/cost-per-md", s.SetCostPerMD)
		r.Post("/provision-percentages", s.SetProvisionPercentages)
	})

	return r
}

type costPerMDResponse struct {
	CostPerMD string `json:"costPerMD"`
}

func (s *SettingsService) GetCostPerMD(w http.ResponseWriter, r *http.Request) {
	value, err := schema.GetSetting(schema.SettingCostPerMD, schema.DefaultCostPerMD, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading cost per MD: %v", err), http.StatusInternalServerError)
		return
	}
	utils.WriteJsonResponse(w, costPerMDResponse{CostPerMD: value})
}

func (s *SettingsService) SetCostPerMD(w http.ResponseWriter, r *http.Request) {
	var params costPerMDResponse
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	// Comma decimals are accepted from the form but stored in the dot form
	// the calculation engine parses.
	value := strings.ReplaceAll(strings.TrimSpace(params.CostPerMD), ",", ".")
	if value == "" {
		http.Error(w, "costPerMD must be specified", http.StatusUnprocessableEntity)
		return
	}
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil || amount <= 0 {
		http.Error(w, "costPerMD must be a positive number", http.StatusUnprocessableEntity)
		return
	}

	if err := schema.SetSetting(schema.SettingCostPerMD, value, s.db); err != nil {
		http.Error(w, fmt.Sprintf("error updating cost per MD: %v", err), http.StatusInternalServerError)
		return
	}
	utils.WriteSuccess(w)
}

type provisionPercentagesResponse struct {
	ProvisionPercentages []float64 `json:"provisionPercentages"`
}

// parseProvisionPercentages parses the comma separated storage form of the
// provision percentage list, e.g. "10,15".
func parseProvisionPercentages(value string) ([]float64, error) {
	parts := strings.Split(value, ",")
	percentages := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pct, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid provision percentage %q", part)
		}
		percentages = append(percentages, pct)
	}
	return percentages, nil
}

func formatProvisionPercentages(percentages []float64) string {
	parts := make([]string, 0, len(percentages))
	for _, pct := range percentages {
		parts = append(parts, strconv.FormatFloat(pct, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func (s *SettingsService) GetProvisionPercentages(w http.ResponseWriter, r *http.Request) {
	value, err := schema.GetSetting(schema.SettingProvisionPercentages, schema.DefaultProvisionPercentages, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading provision percentages: %v", err), http.StatusInternalServerError)
		return
	}

	percentages, err := parseProvisionPercentages(value)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading provision percentages: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, provisionPercentagesResponse{ProvisionPercentages: percentages})
}

func checkValidPercentages(percentages []float64) error {
	if len(percentages) == 0 {
		return errors.New("at least one provision percentage must be specified")
	}
	for _, pct := range percentages {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("provision percentage %v is out of range (0, 100]", pct)
		}
	}
	return nil
}

func (s *SettingsService) SetProvisionPercentages(w http.ResponseWriter, r *http.Request) {
	var params provisionPercentagesResponse
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := checkValidPercentages(params.ProvisionPercentages); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	value := formatProvisionPercentages(params.ProvisionPercentages)
	if err := schema.SetSetting(schema.SettingProvisionPercentages, value, s.db); err != nil {
		http.Error(w, fmt.Sprintf("error updating provision percentages: %v", err), http.StatusInternalServerError)
		return
	}
	utils.WriteSuccess(w)
}
