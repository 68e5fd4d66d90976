package versions

import (
	"log"

	"provision_platform/calculator/calc"
	"provision_platform/calculator/schema"

	"gorm.io/gorm"
)

// Records imported from the spreadsheet era predate the server-side
// calculation pass, so their stored derived values cannot be trusted. This
// migration snapshots the cost-per-MD setting into records that are missing
// one and recomputes cost, provision, and the CZK total from the raw inputs.
func Migration_1_backfill_derived_fields(txn *gorm.DB) error {
	log.Println("backfilling derived project fields")

	costPerMD, err := schema.GetSetting(schema.SettingCostPerMD, schema.DefaultCostPerMD, txn)
	if err != nil {
		return err
	}

	var projects []schema.Project
	if err := txn.Find(&projects).Error; err != nil {
		return err
	}

	for _, project := range projects {
		if project.CostPerMD == "" {
			project.CostPerMD = costPerMD
		}

		derived := calc.Derive(calc.Inputs{
			NumberOfMDs:      project.NumberOfMDs,
			CostPerMD:        project.CostPerMD,
			InvoicedTotal:    project.InvoicedTotal,
			Currency:         project.Currency,
			ExchangeRate:     project.ExchangeRate,
			ProvisionPercent: project.ProvisionPercent,
		})

		updates := map[string]interface{}{
			"cost_per_md":        project.CostPerMD,
			"cost":               derived.Cost,
			"provision":          derived.Provision,
			"invoiced_total_czk": derived.InvoicedTotalCZK,
		}
		if err := txn.Model(&schema.Project{Id: project.Id}).Updates(updates).Error; err != nil {
			return err
		}
	}

	log.Printf("backfilled derived fields for %d projects", len(projects))

	return nil
}
