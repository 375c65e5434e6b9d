package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/wire"
	"tenant-provisioner/pkg/utils"
)

// defaultPlans 默认套餐
var defaultPlans = []*entity.Plan{
	{Code: "starter", Name: "Starter", MaxCompanies: 1, MaxUsers: 5, MaxStorageMB: 5120, Price: 29, BillingInterval: "month", IsActive: true},
	{Code: "growth", Name: "Growth", MaxCompanies: 3, MaxUsers: 25, MaxStorageMB: 20480, Price: 99, BillingInterval: "month", IsActive: true},
	{Code: "enterprise", Name: "Enterprise", MaxCompanies: 10, MaxUsers: 0, MaxStorageMB: 102400, Price: 399, BillingInterval: "month", IsActive: true},
}

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	dataLayer, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 表结构与索引
	if err := dataLayer.PgClient.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	fmt.Println("Schema migrated.")

	// 4. 默认套餐
	err = dataLayer.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, plan := range defaultPlans {
			if err := dataLayer.PlanRepo.Upsert(txCtx, plan); err != nil {
				return err
			}
			fmt.Printf("Plan %s ready.\n", plan.Code)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed to seed plans: %v", err)
	}

	// 5. 可选：为客户开通订阅
	if customerID := os.Getenv("BOOTSTRAP_CUSTOMER_ID"); customerID != "" {
		if err := seedSubscription(ctx, dataLayer, customerID); err != nil {
			log.Fatalf("failed to seed subscription: %v", err)
		}
	}

	// 6. 可选：签发管理员令牌
	if adminID := os.Getenv("BOOTSTRAP_ADMIN_ID"); adminID != "" {
		jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
		token, err := jwtManager.GenerateToken(adminID, os.Getenv("BOOTSTRAP_ADMIN_EMAIL"), utils.RoleAdmin, 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to issue admin token: %v", err)
		}
		fmt.Printf("Admin token (24h): %s\n", token)
	}

	fmt.Println("Bootstrap completed successfully.")
}

func seedSubscription(ctx context.Context, dl *wire.BootstrapLayer, customerID string) error {
	existing, err := dl.SubscriptionRepo.LatestActiveByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if existing != nil {
		fmt.Printf("Customer %s already has subscription %s.\n", customerID, existing.ID)
		return nil
	}

	code := os.Getenv("BOOTSTRAP_PLAN")
	if code == "" {
		code = "starter"
	}
	plan, err := dl.PlanRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("plan %s not found", code)
	}

	sub := &entity.Subscription{
		CustomerID: customerID,
		PlanID:     plan.ID,
		Status:     entity.SubscriptionStatusActive,
	}
	if err := dl.SubscriptionRepo.Save(ctx, sub); err != nil {
		return err
	}
	fmt.Printf("Subscription %s created for %s on plan %s.\n", sub.ID, customerID, plan.Code)
	return nil
}
