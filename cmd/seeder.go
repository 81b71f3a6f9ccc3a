package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/account"
	accountPostgres "github.com/frahmantamala/payfast-itn/internal/account/postgres"
)

var seedAccounts = []struct {
	Email string
	Name  string
}{
	{"fadhil@mail.com", "Fadhil"},
	{"padil@mail.com", "Padil Admin"},
	{"buyer@example.com", "Sandbox Buyer"},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with accounts that sandbox notifications can be attached to.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		gormDB, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := gormDB.Exec("DELETE FROM itn_transactions").Error; err != nil {
				log.Fatalf("failed to clear transactions: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM accounts").Error; err != nil {
				log.Fatalf("failed to clear accounts: %v", err)
			}
			fmt.Println("Cleared transactions and accounts")
		}

		service := account.NewService(accountPostgres.NewAccountRepository(gormDB))
		ctx := context.Background()

		for _, a := range seedAccounts {
			_, err := service.Register(ctx, a.Email, a.Name)
			if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeAccountExists {
				fmt.Println("account already exists:", a.Email)
				continue
			}
			if err != nil {
				log.Fatalf("failed to seed account %s: %v", a.Email, err)
			}
			fmt.Println("Seeded account:", a.Email)
		}
	},
}
