package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin      = "admin"
	RoleTeamLeader = "teamleader"
	RoleUser       = "user"
)

func CheckValidRole(role string) error {
	switch role {
	case RoleAdmin, RoleTeamLeader, RoleUser:
		return nil
	}
	return fmt.Errorf("invalid role '%v', must be one of 'admin', 'teamleader', or 'user'", role)
}

const (
	CurrencyCZK = "CZK"
	CurrencyEUR = "EUR"
)

func CheckValidCurrency(currency string) error {
	switch currency {
	case CurrencyCZK, CurrencyEUR:
		return nil
	}
	return fmt.Errorf("invalid currency '%v', must be 'CZK' or 'EUR'", currency)
}

const (
	ProjectTypeRegular = "regular"
	ProjectTypeCustom  = "custom"
)

func CheckValidProjectType(projectType string) error {
	switch projectType {
	case ProjectTypeRegular, ProjectTypeCustom:
		return nil
	}
	return fmt.Errorf("invalid project type '%v', must be 'regular' or 'custom'", projectType)
}

// Status values are advisory, there is no enforced state machine between them.
const (
	StatusTodo          = "todo"
	StatusInProgress    = "in-progress"
	StatusDone          = "done"
	StatusPendingReview = "pending-review"
	StatusArchived      = "archived"
)

func CheckValidStatus(status string) error {
	switch status {
	case StatusTodo, StatusInProgress, StatusDone, StatusPendingReview, StatusArchived:
		return nil
	}
	return fmt.Errorf("invalid status '%v'", status)
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email    string `gorm:"unique;size:254;not null"`
	Name     string `gorm:"size:100;not null"`
	Password []byte

	Role string `gorm:"size:50;not null;default:'user'"`

	// CreatedBy is set when a team leader or admin provisions the account.
	// The visibility set of a team leader is their own id plus the ids of
	// users whose CreatedBy points at them (one level, no deeper hierarchy).
	CreatedBy *uuid.UUID `gorm:"type:uuid"`

	// Display cache of the creating team leader's name.
	TeamLeaderName string `gorm:"size:100"`

	Projects []Project `gorm:"foreignKey:CreatedBy"`
	Sessions []Session `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsTeamLeader() bool {
	return u.Role == RoleTeamLeader
}

type Session struct {
	Token string `gorm:"primaryKey;size:100"`

	UserId uuid.UUID `gorm:"type:uuid;not null;index"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type Project struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectName string `gorm:"size:200;not null"`
	ProjectType string `gorm:"size:50;not null;default:'regular'"`
	Client      string `gorm:"size:200"`

	Currency string `gorm:"size:10;not null;default:'CZK'"`

	// Raw calculator inputs, stored as submitted. Blank or unparsable
	// values are treated as zero by the calculation engine.
	InvoicedTotal string `gorm:"size:50"`
	NumberOfMDs   string `gorm:"size:50"`
	MdRate        string `gorm:"size:50"`
	ExchangeRate  string `gorm:"size:50"`

	// Snapshot of the cost-per-MD setting at save time.
	CostPerMD string `gorm:"size:50"`

	ProvisionPercent float64

	// Derived fields, CZK. Recomputed by the server from the inputs above
	// on every create and update; caller supplied values are ignored.
	Cost             float64
	Provision        float64
	InvoicedTotalCZK float64

	// Only meaningful for ProjectType == custom.
	CustomProfit string `gorm:"size:50"`
	CustomCost   string `gorm:"size:50"`

	Status string `gorm:"size:50;not null;default:'todo'"`

	PaymentReceivedDate string `gorm:"size:50"`
	InvoiceDueDate      string `gorm:"size:50"`

	Archived   bool `gorm:"not null;default:false"`
	ArchivedAt *time.Time

	// Provenance for records ingested from the CRM.
	CrmDealId   string `gorm:"size:100;index"`
	CrmSyncedAt *time.Time

	CreatedAt time.Time

	CreatedBy uuid.UUID `gorm:"type:uuid;not null;index"`
	User      *User     `gorm:"foreignKey:CreatedBy"`
}

type Setting struct {
	Key   string `gorm:"primaryKey;size:100"`
	Value string `gorm:"size:500"`
}

const (
	SettingCostPerMD            = "cost_per_md"
	SettingProvisionPercentages = "provision_percentages"
	SettingCrmBaseUrl           = "crm_base_url"
	SettingCrmApiKey            = "crm_api_key"
)

const (
	DefaultCostPerMD            = "5000"
	DefaultProvisionPercentages = "10,15"
)

type InvoiceFeedback struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId uuid.UUID `gorm:"type:uuid;not null"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE"`

	ExtractedJson  string
	CorrectedJson  string
	RawTextExcerpt string

	CreatedAt time.Time
}
