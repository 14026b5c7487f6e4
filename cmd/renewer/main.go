package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"domain-renewer/internal/api"
	"domain-renewer/internal/config"
	"domain-renewer/internal/database"
	"domain-renewer/internal/models"
	"domain-renewer/internal/portal"
	"domain-renewer/internal/scheduler"
	"domain-renewer/internal/services"
)

// loadSettingsFromDB loads settings from database and overrides config
func loadSettingsFromDB(cfg *config.Config) {
	db := database.GetDB()
	if db == nil {
		return
	}

	var settings []models.Setting
	if err := db.Find(&settings).Error; err != nil {
		log.Printf("Warning: Failed to load settings from database: %v", err)
		return
	}

	settingsMap := make(map[string]string)
	for _, s := range settings {
		settingsMap[s.Key] = s.Value
	}

	if val, ok := settingsMap["schedule.check_interval"]; ok && val != "" {
		cfg.Schedule.CheckInterval = val
	}
	if val, ok := settingsMap["portal.driver"]; ok && val != "" {
		cfg.Portal.Driver = val
	}
	if val, ok := settingsMap["webhook.enabled"]; ok {
		cfg.Notifications.Webhook.Enabled = val == "true"
	}
	if val, ok := settingsMap["webhook.url"]; ok && val != "" {
		cfg.Notifications.Webhook.URL = val
	}

	log.Println("Settings loaded from database and applied to configuration")
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	serve := flag.Bool("serve", false, "run as a daemon with scheduler and status API")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Initialize database
	if err := database.InitDB(&cfg.Database); err != nil {
		log.Printf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	log.Println("Database initialized successfully")

	// Load settings from database and override config
	loadSettingsFromDB(cfg)

	// Initialize services
	notifyService := services.NewNotifyService(&cfg.Notifications, cfg.ProxyURL)
	renewalService := services.NewRenewalService(cfg, notifyService, services.DriverFactory(cfg))

	if !*serve {
		runOnce(renewalService)
		return
	}

	// Initialize scheduler
	sched := scheduler.NewScheduler(renewalService)
	if err := sched.Start(cfg.Schedule.CheckInterval); err != nil {
		log.Printf("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// Setup API routes
	handler := api.NewHandler(renewalService, cfg.Server.Token)
	api.SetupRoutes(r, handler)

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Printf("Failed to start server: %v", err)
		os.Exit(1)
	}
}

// runOnce executes a single renewal run and maps the outcome to an exit
// code: 0 when the run completed (per-domain failures are reported, not
// fatal), 2 on authentication or unrecoverable navigation failure, 3 on
// any other fatal error.
func runOnce(renewalService *services.RenewalService) {
	result, err := renewalService.Run(context.Background())
	if err != nil {
		log.Printf("Run aborted: %v", err)

		var authErr *portal.AuthError
		var navErr *portal.NavigationError
		if errors.As(err, &authErr) || errors.As(err, &navErr) {
			os.Exit(2)
		}
		os.Exit(3)
	}

	log.Printf("Run finished: %s", result.Summary())
}
