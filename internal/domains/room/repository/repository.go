package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"

	"vfast/infras/otel"
	"vfast/infras/postgres"
	"vfast/internal/domains/room/model"
	gDto "vfast/shared/dto"
	gRepo "vfast/shared/repository"

	"github.com/jmoiron/sqlx"
)

type Room interface {
	Insert(ctx context.Context, model model.Room) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Room, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Room, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	UpdateCount(ctx context.Context, req map[string]any, filter gDto.FilterGroup) (int64, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) (model.Room, error)
	GetAllForUpdateTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) ([]model.Room, error)
	UpdateTx(ctx context.Context, tx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Room]
	db   *postgres.Connection
	otel otel.Otel
}

func New(db *postgres.Connection, otel otel.Otel) Room {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Room](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

// Maintenance stores room work orders.
type Maintenance interface {
	Insert(ctx context.Context, model model.Maintenance) error
	InsertTx(ctx context.Context, tx *sqlx.Tx, model model.Maintenance) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Maintenance, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Maintenance, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	ExistTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) (bool, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) (model.Maintenance, error)
	UpdateTx(ctx context.Context, tx *sqlx.Tx, req map[string]any, filter gDto.FilterGroup) error
}

type maintenanceImpl struct {
	gRepo.Repository[model.Maintenance]
}

func NewMaintenance(db *postgres.Connection, otel otel.Otel) Maintenance {
	return &maintenanceImpl{
		Repository: gRepo.NewRepository[model.Maintenance](model.MaintenanceEntityName, model.MaintenanceTableName, model.FieldID, db, otel),
	}
}
