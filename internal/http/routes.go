package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinwest2000/hubspot-heic-webhook/internal/services"
)

type API struct {
	processor *services.Processor
	log       logrus.FieldLogger
}

func NewAPI(processor *services.Processor, log logrus.FieldLogger) *API {
	return &API{processor: processor, log: log}
}

func registerRoutes(r *gin.Engine, api *API) {
	r.POST("/hubspot-webhook", api.handleHubSpotWebhook)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleHubSpotWebhook always acknowledges with 200. HubSpot disables
// subscriptions that keep failing, so per-note errors are only logged.
func (a *API) handleHubSpotWebhook(c *gin.Context) {
	log := a.log.WithField("request_id", c.GetString(requestIDKey))

	body, err := c.GetRawData()
	if err != nil {
		log.WithError(err).Warn("unable to read webhook body")
	}
	log.WithField("payload", string(body)).Debug("webhook payload")

	events, err := services.ParseEvents(body)
	if err != nil {
		log.WithError(err).Warn("malformed webhook payload")
	}

	// Work continues even if HubSpot hangs up before the pipeline finishes.
	ctx := context.WithoutCancel(c.Request.Context())
	report := a.processor.Process(ctx, events)

	log.WithFields(logrus.Fields{
		"events":    report.Events,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"converted": len(report.Converted),
	}).Info("webhook processed")

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
