package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/config"
	"github.com/temcen/rfpmatch/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, cfg *config.Config, svc *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.Recommendation, logger),
		Admin:          NewAdminHandler(logger, cfg, svc.Recommendation, svc.Keywords),
	}
}
