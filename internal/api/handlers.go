package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"domain-renewer/internal/database"
	"domain-renewer/internal/models"
	"domain-renewer/internal/services"
)

// Handler holds service dependencies
type Handler struct {
	renewalService *services.RenewalService
	triggerToken   string
}

// NewHandler creates a new API handler
func NewHandler(renewalService *services.RenewalService, triggerToken string) *Handler {
	return &Handler{
		renewalService: renewalService,
		triggerToken:   triggerToken,
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/healthz", handler.Health)

	api := r.Group("/api/v1")
	{
		// Run history
		api.GET("/runs", handler.ListRuns)
		api.GET("/runs/latest", handler.LatestRun)
		api.POST("/runs", handler.TriggerRun)

		// System settings
		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.UpdateSettings)
	}
}

// Health reports liveness and whether a run is in flight.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": h.renewalService.Running(),
	})
}

// ListRuns retrieves recent run history
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := database.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// LatestRun retrieves the most recent run
func (h *Handler) LatestRun(c *gin.Context) {
	record, err := database.LatestRun()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No runs recorded yet"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// TriggerRun starts a renewal run in the background. Renewals are
// financially consequential, so the endpoint can be token-guarded and
// refuses to overlap runs.
func (h *Handler) TriggerRun(c *gin.Context) {
	if h.triggerToken != "" {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != h.triggerToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing token"})
			return
		}
	}

	if h.renewalService.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "A renewal run is already in progress"})
		return
	}

	go func() {
		h.renewalService.Run(context.Background())
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Renewal run started"})
}

// GetSettings retrieves system settings
func (h *Handler) GetSettings(c *gin.Context) {
	db := database.GetDB()

	var settings []models.Setting
	if err := db.Find(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings updates system settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var settings map[string]string
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := database.GetDB()

	for key, value := range settings {
		setting := models.Setting{
			Key:   key,
			Value: value,
		}
		db.Save(&setting)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully"})
}
