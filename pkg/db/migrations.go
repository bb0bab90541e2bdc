package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations applies schema changes in order. IDs are never renamed once shipped.
func runMigrations(database *gorm.DB) error {
	m := gormigrate.New(database, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_conversations_messages",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Conversation{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Message{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("messages", "conversations")
			},
		},
		{
			ID: "002_uploaded_files",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&UploadedFile{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("uploaded_files")
			},
		},
		{
			ID: "003_sessions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Session{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions")
			},
		},
	})
	return m.Migrate()
}
