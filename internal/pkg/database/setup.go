package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var DB *gorm.DB

// GetDB returns the process-wide database handle.
func GetDB() *gorm.DB {
	if DB == nil {
		panic("database not initialized. Call SetupDatabase first.")
	}
	return DB
}

func SetupDatabase() {
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", DriverMySQL))
	dsn := DSNFromEnv(driver)

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = Open(driver, dsn)
		if err == nil {
			if err = Migrate(DB); err != nil {
				panic(err)
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// DSNFromEnv builds the data source name for the selected driver.
func DSNFromEnv(driver string) string {
	if dsn := env.GetEnv("DB_DSN", ""); dsn != "" {
		return dsn
	}
	switch driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_NAME", ""),
			env.GetEnv("DB_PORT", "5432"),
			env.GetEnv("DB_SSLMODE", "disable"),
		)
	case DriverSQLite:
		return env.GetEnv("DB_NAME", "replyfox.db")
	default:
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
	}
}

// Open connects with the given driver. Errors are translated so that unique
// violations surface as gorm.ErrDuplicatedKey on every backend.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL, "":
		dialector = mysql.New(mysql.Config{
			DSN:                       dsn, // data source name
			DefaultStringSize:         256, // default size for string fields
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		})
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates the schema and seeds the plan and option catalogs.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := SeedBillingPlans(db); err != nil {
		return fmt.Errorf("seed billing plans: %w", err)
	}
	if err := repository.NewOptionRepository(db).SeedDefaults(context.Background()); err != nil {
		return fmt.Errorf("seed option catalog: %w", err)
	}
	return nil
}

// SeedBillingPlans inserts missing plans and refreshes variant ids that are
// configured through LEMON_VARIANT_<PLAN_CODE>.
func SeedBillingPlans(db *gorm.DB) error {
	plans := models.DefaultBillingPlans(variantFromEnv)
	for i := range plans {
		plan := plans[i]
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plan_code"}},
			DoNothing: true,
		}).Create(&plan).Error; err != nil {
			return err
		}
		if plan.ProviderVariantID == "" {
			continue
		}
		if err := db.Model(&models.BillingPlan{}).
			Where("plan_code = ?", plan.PlanCode).
			Update("provider_variant_id", plan.ProviderVariantID).Error; err != nil {
			return err
		}
	}
	return nil
}

func variantFromEnv(planCode string) string {
	return strings.TrimSpace(env.GetEnv("LEMON_VARIANT_"+strings.ToUpper(planCode), ""))
}
