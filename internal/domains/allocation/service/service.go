// Package service binds rooms to bookings. Every operation here moves a booking and
// its rooms together inside one database transaction, so either all rows change or none do.
package service

import (
	"context"
	"fmt"
	"slices"

	"vfast/config"
	"vfast/infras/otel"
	bookingModel "vfast/internal/domains/booking/model"
	bookingDto "vfast/internal/domains/booking/model/dto"
	bookingRepo "vfast/internal/domains/booking/repository"
	"vfast/internal/domains/booking/workflow"
	notificationModel "vfast/internal/domains/notification/model"
	notificationService "vfast/internal/domains/notification/service"
	roomModel "vfast/internal/domains/room/model"
	roomRepo "vfast/internal/domains/room/repository"
	"vfast/permissions"
	"vfast/shared"
	"vfast/shared/cache"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"
	gRepo "vfast/shared/repository"
	"vfast/shared/timezone"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const defaultMaxRetry = 3

type Allocation interface {
	Allocate(ctx context.Context, bookingID string, req bookingDto.AllocateRequest) ([]string, error)
	CancelAllocation(ctx context.Context, bookingID string, req bookingDto.CancelAllocationRequest) error
	CompleteStay(ctx context.Context, bookingID string, req bookingDto.CheckOutRequest) error
}

type serviceImpl struct {
	bookingRepo     bookingRepo.Booking
	bookingRoomRepo bookingRepo.BookingRoom
	roomRepo        roomRepo.Room
	maintenanceRepo roomRepo.Maintenance
	transactor      gRepo.Transactor
	machine         *workflow.Machine
	notification    notificationService.Notification
	cfg             *config.Config
	cache           cache.RedisCache
	otel            otel.Otel
}

func New(
	bookingRepo bookingRepo.Booking,
	bookingRoomRepo bookingRepo.BookingRoom,
	roomRepo roomRepo.Room,
	maintenanceRepo roomRepo.Maintenance,
	transactor gRepo.Transactor,
	machine *workflow.Machine,
	notification notificationService.Notification,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
) Allocation {
	return &serviceImpl{
		bookingRepo:     bookingRepo,
		bookingRoomRepo: bookingRoomRepo,
		roomRepo:        roomRepo,
		maintenanceRepo: maintenanceRepo,
		transactor:      transactor,
		machine:         machine,
		notification:    notification,
		cfg:             cfg,
		cache:           cache,
		otel:            otel,
	}
}

// Allocate binds the given rooms to an approved booking and marks them occupied.
// It returns the bound room numbers.
func (s *serviceImpl) Allocate(ctx context.Context, bookingID string, req bookingDto.AllocateRequest) (roomNumbers []string, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Allocate")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)

	if err = permissions.Require(actor.Role, constant.RoleVFast); err != nil {
		return nil, err //nolint:wrapcheck
	}

	ids := slices.Clone(req.RoomIDs)
	slices.Sort(ids)

	if len(ids) == 0 {
		return nil, failure.BadRequestFromString("at least one room is required") // nolint:wrapcheck
	}

	if len(slices.Compact(slices.Clone(ids))) != len(ids) {
		return nil, failure.BadRequestFromString("room ids must be unique") // nolint:wrapcheck
	}

	var t workflow.Transition

	err = s.retry(ctx, "allocate", func() error {
		return s.transactor.WithTx(ctx, func(tx *sqlx.Tx) error {
			booking, err := s.lockBooking(ctx, tx, bookingID)
			if err != nil {
				return err
			}

			if booking.IsDeleted || (booking.Status != bookingModel.StatusApproved && booking.Status != bookingModel.StatusPendingReconsideration) {
				return failure.ConflictOf(workflow.ErrBookingNotAllocatable, //nolint:wrapcheck
					fmt.Sprintf("booking in status %s cannot be allocated", booking.Status))
			}

			if len(ids) > booking.NumberOfRooms {
				return failure.BadRequestFromString( //nolint:wrapcheck
					fmt.Sprintf("booking requested %d room(s), %d given", booking.NumberOfRooms, len(ids)))
			}

			t, err = s.machine.Apply(booking, workflow.Command{
				Action: workflow.ActionAllocate,
				Actor:  actor,
				Notes:  req.Notes,
				At:     timezone.Now(),
			})
			if err != nil {
				return err //nolint:wrapcheck
			}

			rooms, err := s.roomRepo.GetAllForUpdateTx(ctx, tx, roomsByID(ids...))
			if err != nil {
				return fmt.Errorf("failed to lock rooms: %w", err)
			}

			if err = s.checkRooms(ctx, tx, booking, ids, rooms); err != nil {
				return err
			}

			bindings := make([]bookingModel.BookingRoom, len(rooms))
			roomNumbers = make([]string, len(rooms))

			for i, room := range rooms {
				roomNumbers[i] = room.RoomNumber
				bindings[i] = bookingModel.BookingRoom{
					ID:           uuid.NewString(),
					BookingID:    booking.ID,
					RoomID:       room.ID,
					RoomNumber:   room.RoomNumber,
					CheckInDate:  booking.CheckInDate,
					CheckOutDate: booking.CheckOutDate,
					AllocatedAt:  timezone.Now(),
					AllocatedBy:  actor.ID,
				}
			}

			occupied := map[string]any{
				roomModel.FieldStatus:    roomModel.StatusOccupied,
				constant.FieldModifiedAt: timezone.Now(),
				constant.FieldModifiedBy: actor.ID,
			}

			if err = s.roomRepo.UpdateTx(ctx, tx, occupied, roomsByID(ids...)); err != nil {
				return fmt.Errorf("failed to occupy rooms: %w", err)
			}

			if err = s.bookingRoomRepo.InsertBulkTx(ctx, tx, bindings); err != nil {
				return fmt.Errorf("failed to bind rooms: %w", err)
			}

			return s.advance(ctx, tx, booking, t)
		})
	})
	if err != nil {
		return nil, s.mapError(err, "allocate rooms")
	}

	log.Info().Str("booking_id", bookingID).Strs("rooms", roomNumbers).Msg("rooms allocated")

	s.invalidate(ctx)
	s.notify(ctx, append(
		notificationModel.StatusChanged(t.From, t.Booking, actor.ID, nil),
		notificationModel.RoomAllocated(t.Booking, roomNumbers, actor.ID),
	)...)

	return roomNumbers, nil
}

// CancelAllocation unbinds every room of an allocated booking that has not checked in,
// returns the rooms to AVAILABLE and sends the booking back for reconsideration.
func (s *serviceImpl) CancelAllocation(ctx context.Context, bookingID string, req bookingDto.CancelAllocationRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".CancelAllocation")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	t, err := s.unbind(ctx, bookingID, workflow.Command{Action: workflow.ActionCancelAllocation, Notes: req.Notes})
	if err != nil {
		return s.mapError(err, "cancel allocation")
	}

	log.Info().Str("booking_id", bookingID).Msg("allocation cancelled")

	s.notify(ctx, notificationModel.StatusChanged(t.From, t.Booking, workflow.ActorFromContext(ctx).ID, nil)...)

	return nil
}

// CompleteStay checks the booking out and frees its rooms. The booking stays ALLOCATED
// with its stay marked CHECKED_OUT.
func (s *serviceImpl) CompleteStay(ctx context.Context, bookingID string, req bookingDto.CheckOutRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".CompleteStay")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if _, err = s.unbind(ctx, bookingID, workflow.Command{Action: workflow.ActionCheckOut, Notes: req.Notes}); err != nil {
		return s.mapError(err, "complete stay")
	}

	log.Info().Str("booking_id", bookingID).Msg("stay completed")

	return nil
}

func (s *serviceImpl) unbind(ctx context.Context, bookingID string, cmd workflow.Command) (t workflow.Transition, err error) {
	cmd.Actor = workflow.ActorFromContext(ctx)
	cmd.At = timezone.Now()

	err = s.retry(ctx, string(cmd.Action), func() error {
		return s.transactor.WithTx(ctx, func(tx *sqlx.Tx) error {
			booking, err := s.lockBooking(ctx, tx, bookingID)
			if err != nil {
				return err
			}

			t, err = s.machine.Apply(booking, cmd)
			if err != nil {
				return err //nolint:wrapcheck
			}

			bindings, err := s.bookingRoomRepo.GetAllForUpdateTx(ctx, tx, bookingDto.ActiveBindings(booking.ID))
			if err != nil {
				return fmt.Errorf("failed to lock room bindings: %w", err)
			}

			if len(bindings) > 0 {
				ids := make([]string, len(bindings))
				for i, binding := range bindings {
					ids[i] = binding.RoomID
				}

				if _, err = s.roomRepo.GetAllForUpdateTx(ctx, tx, roomsByID(ids...)); err != nil {
					return fmt.Errorf("failed to lock rooms: %w", err)
				}

				released := map[string]any{bookingModel.FieldReleasedAt: cmd.At}
				if err = s.bookingRoomRepo.UpdateTx(ctx, tx, released, bookingDto.ActiveBindings(booking.ID)); err != nil {
					return fmt.Errorf("failed to release room bindings: %w", err)
				}

				available := map[string]any{
					roomModel.FieldStatus:    roomModel.StatusAvailable,
					constant.FieldModifiedAt: cmd.At,
					constant.FieldModifiedBy: cmd.Actor.ID,
				}

				if err = s.roomRepo.UpdateTx(ctx, tx, available, occupiedRooms(ids...)); err != nil {
					return fmt.Errorf("failed to free rooms: %w", err)
				}
			}

			return s.advance(ctx, tx, booking, t)
		})
	})
	if err != nil {
		return t, err
	}

	s.invalidate(ctx)

	return t, nil
}

// checkRooms verifies every requested room exists, is AVAILABLE, is not under maintenance
// and has no active binding overlapping the booking's stay. The checks read through tx
// after the rooms are locked, so a concurrent allocation cannot slip in between.
func (s *serviceImpl) checkRooms(ctx context.Context, tx *sqlx.Tx, booking bookingModel.Booking, ids []string, rooms []roomModel.Room) error {
	if len(rooms) != len(ids) {
		for _, id := range ids {
			if !slices.ContainsFunc(rooms, func(r roomModel.Room) bool { return r.ID == id }) {
				return failure.ConflictOf(workflow.ErrRoomUnavailable, fmt.Sprintf("Room %s does not exist", id)) // nolint:wrapcheck
			}
		}
	}

	for _, room := range rooms {
		if !room.Allocatable() {
			return unavailable(room)
		}

		inMaintenance, err := s.maintenanceRepo.ExistTx(ctx, tx, maintenanceOf(room.ID))
		if err != nil {
			return fmt.Errorf("failed to check room maintenance: %w", err)
		}

		if inMaintenance {
			return unavailable(room)
		}

		overlapping, err := s.bookingRoomRepo.ExistTx(ctx, tx, overlapping(room.ID, booking))
		if err != nil {
			return fmt.Errorf("failed to check room bindings: %w", err)
		}

		if overlapping {
			return unavailable(room)
		}
	}

	return nil
}

func (s *serviceImpl) lockBooking(ctx context.Context, tx *sqlx.Tx, id string) (bookingModel.Booking, error) {
	booking, err := s.bookingRepo.GetForUpdateTx(ctx, tx, bookingDto.ByID(id))
	if err != nil {
		return booking, fmt.Errorf("failed to lock booking: %w", err)
	}

	if booking.ID == constant.Empty {
		return booking, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	return booking, nil
}

func (s *serviceImpl) advance(ctx context.Context, tx *sqlx.Tx, booking bookingModel.Booking, t workflow.Transition) error {
	affected, err := s.bookingRepo.UpdateCountTx(ctx, tx, t.Changes, bookingDto.Guard(booking))
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if affected == 0 {
		return failure.ConflictOf(workflow.ErrInvalidTransition, "booking was changed by another request, reload and try again") // nolint:wrapcheck
	}

	return nil
}

// retry replays fn after a serialization failure or deadlock. Any other error ends it.
func (s *serviceImpl) retry(ctx context.Context, operation string, fn func() error) error {
	maxRetry := s.cfg.Allocation.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}

	var err error

	for attempt := 0; attempt <= maxRetry; attempt++ {
		if err = fn(); err == nil || !gRepo.IsRetryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err() //nolint:wrapcheck
		}

		log.Warn().Err(err).Str("operation", operation).Int("attempt", attempt+1).Msg("transaction aborted, retrying")
	}

	return err
}

// mapError turns a losing race on the booking_rooms exclusion constraint into RoomUnavailable.
func (s *serviceImpl) mapError(err error, operation string) error {
	switch {
	case gRepo.PqCode(err) == constant.PqErrorCodeExclusionViolation:
		return failure.ConflictOf(workflow.ErrRoomUnavailable, "one of the selected rooms is no longer available") // nolint:wrapcheck
	case gRepo.IsRetryable(err):
		return failure.ConflictOf(workflow.ErrInvalidTransition, "booking is busy, try again") // nolint:wrapcheck
	}

	log.Warn().Err(err).Str("operation", operation).Msg("allocation transaction failed")

	return err
}

func (s *serviceImpl) invalidate(ctx context.Context) {
	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, bookingModel.EntityName)
		shared.InvalidateCaches(c, s.cache, roomModel.EntityName)
	}()
}

func (s *serviceImpl) notify(ctx context.Context, events ...notificationModel.Event) {
	if err := s.notification.Publish(ctx, events...); err != nil {
		log.Warn().Err(err).Msg("allocation notification not delivered")
	}
}

func unavailable(room roomModel.Room) error {
	return failure.ConflictOf(workflow.ErrRoomUnavailable, fmt.Sprintf("Room %s is no longer available", room.RoomNumber)) // nolint:wrapcheck
}

func roomsByID(ids ...string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: roomModel.FieldID, Value: ids, Operator: gDto.FilterOperatorIn, Table: roomModel.TableName},
		},
	}
}

func occupiedRooms(ids ...string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: roomModel.FieldID, Value: ids, Operator: gDto.FilterOperatorIn},
			gDto.Filter{ArgName: roomModel.ArgExpectedStatus, Field: roomModel.FieldStatus, Value: roomModel.StatusOccupied, Operator: gDto.FilterOperatorEq},
		},
	}
}

func maintenanceOf(roomID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: roomModel.FieldMaintenanceRoomID, Value: roomID, Operator: gDto.FilterOperatorEq},
			gDto.Filter{Field: roomModel.FieldMaintenanceStatus, Value: roomModel.MaintenanceInProgress, Operator: gDto.FilterOperatorEq},
		},
	}
}

// overlapping matches active bindings of roomID whose stay intersects the booking's [check-in, check-out).
func overlapping(roomID string, booking bookingModel.Booking) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: bookingModel.FieldBookingRoomRoomID, Value: roomID, Operator: gDto.FilterOperatorEq},
			gDto.Filter{Field: bookingModel.FieldReleasedAt, Operator: gDto.FilterIsNull},
			gDto.Filter{ArgName: "stay_end", Field: bookingModel.FieldBookingRoomCheckIn, Value: booking.CheckOutDate, Operator: gDto.FilterOperatorLess},
			gDto.Filter{ArgName: "stay_start", Field: bookingModel.FieldBookingRoomCheckOut, Value: booking.CheckInDate, Operator: gDto.FilterOperatorGreater},
		},
	}
}
