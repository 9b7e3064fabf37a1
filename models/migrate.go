package models

import (
	"log"

	"github.com/btpflow/worksite_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Equipment{}, &EquipmentUsage{},
		&Site{}, &RosterEntry{},
		&Report{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
