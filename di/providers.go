package di

import (
	"vfast/config"
	"vfast/internal/domains/booking/workflow"
)

func provideWorkflow(cfg *config.Config) *workflow.Machine {
	return workflow.New(cfg.Booking.MaxReconsiderations)
}
