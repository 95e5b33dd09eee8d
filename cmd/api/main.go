package main

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"

	"github.com/shepherdcms/automation/internal/core/audit"
	"github.com/shepherdcms/automation/internal/core/auth"
	"github.com/shepherdcms/automation/internal/core/automation"
	"github.com/shepherdcms/automation/internal/core/email"
	"github.com/shepherdcms/automation/internal/core/messaging"
	"github.com/shepherdcms/automation/internal/modules/automation/handlers"
	"github.com/shepherdcms/automation/internal/modules/automation/repositories"
	"github.com/shepherdcms/automation/internal/modules/automation/services"
	"github.com/shepherdcms/automation/internal/shared/config"
	"github.com/shepherdcms/automation/internal/shared/database"
	"github.com/shepherdcms/automation/internal/shared/utils"
)

func main() {
	cfg := config.LoadConfig()
	utils.InitLogger(cfg.Env)
	log.Info().Str("port", cfg.Port).Msg("starting automation api")

	db := database.NewDB(cfg.DatabaseURL)
	defer database.Close(db)

	repo := repositories.NewAutomationRepo(db)

	// Sender capabilities consumed by the action handlers.
	messageSender := messaging.NewService(cfg.MessageGatewayURL, cfg.MessageGatewayKey)
	emailSender := email.NewService(email.NewBrevoProvider(cfg.BrevoAPIKey, cfg.EmailFrom, cfg.EmailFromName))
	log.Info().Str("email_provider", emailSender.GetProviderName()).Msg("senders configured")

	actionTimeout := time.Duration(cfg.ActionTimeoutSeconds) * time.Second

	// Action handler registry, built once at startup.
	registry := automation.NewRegistry()
	registry.Register(automation.NewSendMessageHandler(messageSender))
	registry.Register(automation.NewSendEmailHandler(emailSender))
	registry.Register(automation.NewWebhookHandler(&http.Client{Timeout: actionTimeout}))
	registry.Register(automation.NewTagMemberHandler(db))
	log.Info().Strs("action_types", registry.Types()).Msg("action registry ready")

	service := services.NewAutomationService(repo, registry, actionTimeout)
	auditService := audit.NewService(db)
	handler := handlers.NewAutomationHandler(service, auditService)

	authService := auth.NewService(cfg.JWTSecret)

	app := fiber.New(fiber.Config{
		AppName: "shepherd-automation",
	})
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/automation", auth.Middleware(authService))
	api.Post("/rules", handler.CreateRule)
	api.Get("/rules", handler.ListRules)
	api.Get("/rules/:id", handler.GetRule)
	api.Put("/rules/:id", handler.UpdateRule)
	api.Delete("/rules/:id", handler.DeleteRule)
	api.Post("/rules/:id/execute", handler.ExecuteRule)
	api.Get("/logs", handler.ListLogs)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
