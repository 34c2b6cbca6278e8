//go:build wireinject
// +build wireinject

package di

import (
	"vfast/config"
	"vfast/infras/jwt"
	"vfast/infras/kafka"
	"vfast/infras/otel"
	"vfast/infras/postgres"
	"vfast/infras/redis"
	"vfast/infras/s3"
	"vfast/permissions"
	"vfast/shared/cache"
	gRepository "vfast/shared/repository"
	"vfast/transport/http"
	"vfast/transport/http/middleware"
	"vfast/transport/http/router"

	allocationService "vfast/internal/domains/allocation/service"
	authService "vfast/internal/domains/auth/service"
	bookingRepository "vfast/internal/domains/booking/repository"
	bookingService "vfast/internal/domains/booking/service"
	guestRepository "vfast/internal/domains/guest/repository"
	guestService "vfast/internal/domains/guest/service"
	notificationService "vfast/internal/domains/notification/service"
	reportService "vfast/internal/domains/report/service"
	roomRepository "vfast/internal/domains/room/repository"
	roomService "vfast/internal/domains/room/service"
	userRepository "vfast/internal/domains/user/repository"
	userService "vfast/internal/domains/user/service"

	authHandler "vfast/internal/handlers/auth"
	bookingHandler "vfast/internal/handlers/booking"
	guestHandler "vfast/internal/handlers/guest"
	reportHandler "vfast/internal/handlers/report"
	roomHandler "vfast/internal/handlers/room"
	userHandler "vfast/internal/handlers/user"

	"github.com/google/wire"
)

var configurations = wire.NewSet(
	config.Get,
	permissions.Get,
)

var infrastructures = wire.NewSet(
	postgres.New,
	otel.New,
	redis.New,
	jwt.New,
	kafka.New,
	s3.New,
)

var middlewares = wire.NewSet(
	middleware.NewAppMiddleware,
	middleware.NewAuthRoleMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
	gRepository.NewTransactor,
	provideWorkflow,
)

var userDomain = wire.NewSet(
	userRepository.New,
	userService.New,
	authService.New,
)

var roomDomain = wire.NewSet(
	roomRepository.New,
	roomRepository.NewMaintenance,
	roomService.New,
)

var bookingDomain = wire.NewSet(
	bookingRepository.New,
	bookingRepository.NewRejection,
	bookingRepository.NewBookingRoom,
	bookingService.New,
	allocationService.New,
	notificationService.New,
)

var guestDomain = wire.NewSet(
	guestRepository.New,
	guestService.New,
)

var reportDomain = wire.NewSet(
	reportService.New,
)

var domains = wire.NewSet(
	userDomain,
	roomDomain,
	bookingDomain,
	guestDomain,
	reportDomain,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	authHandler.New,
	userHandler.New,
	roomHandler.New,
	bookingHandler.New,
	guestHandler.New,
	reportHandler.New,
	router.New,
)

func InitializeService() *http.HTTP {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		domains,
		routing,
		http.New,
	)

	return &http.HTTP{}
}
