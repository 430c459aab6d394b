package http

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinwest2000/hubspot-heic-webhook/internal/config"
	"github.com/clinwest2000/hubspot-heic-webhook/internal/services"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    logrus.FieldLogger
}

func NewServer(cfg config.Config, log logrus.FieldLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)

	hubspot := services.NewHubSpotService(cfg, log)
	waiter := services.NewSyncJobWaiter(cfg)
	cloudconvert := services.NewCloudConvertService(cfg, hubspot, waiter, log)
	processor := services.NewProcessor(hubspot, cloudconvert, log)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(cfg.MaxBodyBytes))
	if len(cfg.CORSAllowedOrigins) > 0 {
		engine.Use(CORS(cfg.CORSAllowedOrigins))
	}

	api := NewAPI(processor, log)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg, log: log}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	s.log.WithField("addr", addr).Info("webhook receiver listening")
	return s.engine.Run(addr)
}
