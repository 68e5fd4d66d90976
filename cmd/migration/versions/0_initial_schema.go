package versions

import (
	"log"

	"provision_platform/calculator/schema"

	"gorm.io/gorm"
)

func Migration_0_initial_schema(txn *gorm.DB) error {
	log.Println("creating calculator schema")

	err := txn.Migrator().AutoMigrate(
		&schema.User{}, &schema.Session{}, &schema.Project{}, &schema.Setting{},
		&schema.InvoiceFeedback{},
	)
	if err != nil {
		return err
	}

	log.Println("calculator schema created")

	return nil
}
