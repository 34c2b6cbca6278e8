package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"

	"vfast/infras/otel"
	"vfast/infras/postgres"
	"vfast/internal/domains/booking/model"
	gDto "vfast/shared/dto"
	gRepo "vfast/shared/repository"

	"github.com/jmoiron/sqlx"
)

// Booking rows are never deleted; soft deletion is an update of is_deleted.
type Booking interface {
	Insert(ctx context.Context, model model.Booking) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Booking, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Booking, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	UpdateCount(ctx context.Context, req map[string]any, filter gDto.FilterGroup) (int64, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) (model.Booking, error)
	UpdateCountTx(ctx context.Context, tx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) (int64, error)
	InsertTx(ctx context.Context, tx *sqlx.Tx, model model.Booking) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Booking]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Booking {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Booking](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

// Rejection is append only: it has no update or delete.
type Rejection interface {
	Insert(ctx context.Context, model model.Rejection) error
	InsertTx(ctx context.Context, tx *sqlx.Tx, model model.Rejection) error
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Rejection, error)
}

type rejectionImpl struct {
	gRepo.Repository[model.Rejection]
}

func NewRejection(db *postgres.Connection, otel otel.Otel) Rejection {
	return &rejectionImpl{
		Repository: gRepo.NewRepository[model.Rejection](model.RejectionEntityName, model.RejectionTableName, model.FieldID, db, otel),
	}
}

// BookingRoom stores room bindings. Releasing a binding stamps released_at; rows are kept as history.
type BookingRoom interface {
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.BookingRoom, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	ExistTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) (bool, error)
	InsertBulkTx(ctx context.Context, tx *sqlx.Tx, models []model.BookingRoom) error
	GetAllForUpdateTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) ([]model.BookingRoom, error)
	UpdateTx(ctx context.Context, tx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error
}

type bookingRoomImpl struct {
	gRepo.Repository[model.BookingRoom]
}

func NewBookingRoom(db *postgres.Connection, otel otel.Otel) BookingRoom {
	return &bookingRoomImpl{
		Repository: gRepo.NewRepository[model.BookingRoom](model.BookingRoomEntityName, model.BookingRoomTableName, model.FieldID, db, otel),
	}
}
