package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/avess/gallery-bed/config"
	"github.com/avess/gallery-bed/database"
)

// migrateCmd applies the schema without starting the server. Useful for
// provisioning a fresh postgres database before first boot.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		cfg := config.Get()

		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close(db)

		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migration finished.")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
