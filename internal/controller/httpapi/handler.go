package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/render"
	"github.com/Freeeeeet/clinic_scheduler/internal/service"
)

type AvailabilityManager interface {
	Create(ctx context.Context, doctorID string, in service.AvailabilityInput) (*model.Availability, error)
	List(ctx context.Context, doctorID string) ([]*model.Availability, error)
	Update(ctx context.Context, doctorID string, id int64, in service.AvailabilityInput) (*model.Availability, error)
	Delete(ctx context.Context, doctorID string, id int64) error
}

type Booker interface {
	Book(ctx context.Context, studentID, slotID int64) (*model.Visit, error)
	Cancel(ctx context.Context, visitID, studentID int64) (*model.Visit, error)
	Complete(ctx context.Context, visitID int64, doctorID string) (*model.Visit, error)
	ListAvailable(ctx context.Context, filter model.SlotFilter) ([]*model.ScheduleSlot, error)
	ListMySchedules(ctx context.Context, studentID int64) ([]*model.Visit, error)
	ListDoctorSchedule(ctx context.Context, doctorID string, from, to time.Time) ([]*model.ScheduleSlot, error)
}

type SlotJobs interface {
	GenerateSlots(ctx context.Context, targetWeekStart time.Time) (int, error)
	PurgeExpiredUnbooked(ctx context.Context, now time.Time) (int, error)
}

type SlotManager interface {
	CreateSlot(ctx context.Context, doctorID string, in service.SlotInput) (*model.ScheduleSlot, error)
	UpdateSlot(ctx context.Context, doctorID string, slotID int64, in service.SlotUpdate) (*model.ScheduleSlot, error)
	CancelSlot(ctx context.Context, doctorID string, slotID int64) (*model.ScheduleSlot, []*model.Visit, error)
	RestoreSlot(ctx context.Context, doctorID string, slotID int64) (*model.ScheduleSlot, error)
}

// Scheduler is the slot side of the API: admin jobs and doctor slot management.
type Scheduler interface {
	SlotJobs
	SlotManager
}

type Handler struct {
	availability AvailabilityManager
	booking      Booker
	schedule     Scheduler
	location     *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

func NewHandler(
	availability AvailabilityManager,
	booking Booker,
	schedule Scheduler,
	location *time.Location,
	logger *zap.Logger,
) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		availability: availability,
		booking:      booking,
		schedule:     schedule,
		location:     location,
		now:          time.Now,
		logger:       logger,
	}
}

// RegisterRoutes mounts the API under g. g must already run JWTMiddleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	doctor := g.Group("/doctor", RequireRole(RoleDoctor))
	doctor.POST("/availabilities", h.CreateAvailability)
	doctor.GET("/availabilities", h.ListAvailabilities)
	doctor.PUT("/availabilities/:id", h.UpdateAvailability)
	doctor.DELETE("/availabilities/:id", h.DeleteAvailability)
	doctor.GET("/schedules", h.DoctorSchedule)
	doctor.GET("/schedules/week.png", h.DoctorWeekImage)
	doctor.POST("/schedules", h.CreateSlot)
	doctor.PUT("/schedules/:id", h.UpdateSlot)
	doctor.PUT("/schedules/:id/cancel", h.CancelSlot)
	doctor.PUT("/schedules/:id/restore", h.RestoreSlot)
	doctor.POST("/visits/:id/complete", h.CompleteVisit)

	g.GET("/schedules/available", h.ListAvailableSlots)

	student := g.Group("/student", RequireRole(RoleStudent))
	student.POST("/schedules", h.Book)
	student.POST("/visits/:id/cancel", h.CancelVisit)
	student.GET("/me/schedules", h.ListMySchedules)

	admin := g.Group("/admin", RequireRole(RoleAdmin))
	admin.POST("/slots/generate", h.GenerateSlots)
	admin.POST("/slots/purge", h.PurgeSlots)
}

func (h *Handler) CreateAvailability(c echo.Context) error {
	var req createAvailabilityRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in, err := toAvailabilityInput(req.DayOfWeek, req.StartTime, req.EndTime, req.IsActive)
	if err != nil {
		return err
	}

	a, err := h.availability.Create(c.Request().Context(), UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAvailabilities(c echo.Context) error {
	list, err := h.availability.List(c.Request().Context(), UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"availabilities": emptyIfNil(list)})
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateAvailabilityRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in, err := toAvailabilityInput(req.DayOfWeek, req.StartTime, req.EndTime, req.IsActive)
	if err != nil {
		return err
	}

	a, err := h.availability.Update(c.Request().Context(), UserIDFromContext(c.Request().Context()), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.availability.Delete(c.Request().Context(), UserIDFromContext(c.Request().Context()), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DoctorSchedule lists the caller's slots between from and to (inclusive dates), this week by default.
func (h *Handler) DoctorSchedule(c echo.Context) error {
	var q doctorScheduleQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	from, err := parseDate(q.From)
	if err != nil {
		return err
	}
	to, err := parseDate(q.To)
	if err != nil {
		return err
	}

	if from == nil {
		monday := service.WeekStart(h.now().In(h.location))
		from = &monday
	}
	if to == nil {
		sunday := from.AddDate(0, 0, 6)
		to = &sunday
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, h.location)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, h.location).AddDate(0, 0, 1)

	slots, err := h.booking.ListDoctorSchedule(c.Request().Context(), UserIDFromContext(c.Request().Context()), start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": emptyIfNil(slots)})
}

// DoctorWeekImage renders the caller's week (the current one unless ?week= is given) as a PNG.
func (h *Handler) DoctorWeekImage(c echo.Context) error {
	var q weekImageQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	day, err := parseDate(q.Week)
	if err != nil {
		return err
	}

	now := h.now().In(h.location)
	monday := service.WeekStart(now)
	if day != nil {
		monday = service.WeekStart(*day)
	}

	start := time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, h.location)
	slots, err := h.booking.ListDoctorSchedule(c.Request().Context(), UserIDFromContext(c.Request().Context()), start, start.AddDate(0, 0, 7))
	if err != nil {
		return err
	}

	img, err := render.WeekImage(monday, slots, now)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/png", img)
}

func (h *Handler) CreateSlot(c echo.Context) error {
	var req createSlotRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in, err := req.toInput()
	if err != nil {
		return err
	}

	slot, err := h.schedule.CreateSlot(c.Request().Context(), UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateSlotRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in, err := req.toUpdate()
	if err != nil {
		return err
	}

	slot, err := h.schedule.UpdateSlot(c.Request().Context(), UserIDFromContext(c.Request().Context()), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

// CancelSlot cancels the slot and every booked visit on it.
func (h *Handler) CancelSlot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	slot, visits, err := h.schedule.CancelSlot(c.Request().Context(), UserIDFromContext(c.Request().Context()), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"slot":             slot,
		"cancelled_visits": emptyIfNil(visits),
	})
}

func (h *Handler) RestoreSlot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	slot, err := h.schedule.RestoreSlot(c.Request().Context(), UserIDFromContext(c.Request().Context()), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) CompleteVisit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	visit, err := h.booking.Complete(c.Request().Context(), id, UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, visit)
}

func (h *Handler) ListAvailableSlots(c echo.Context) error {
	var q availableSlotsQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	from, err := parseDate(q.From)
	if err != nil {
		return err
	}
	to, err := parseDate(q.To)
	if err != nil {
		return err
	}

	slots, err := h.booking.ListAvailable(c.Request().Context(), model.SlotFilter{
		DoctorID: q.DoctorID,
		From:     from,
		To:       to,
		Now:      h.now(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": emptyIfNil(slots)})
}

func (h *Handler) Book(c echo.Context) error {
	studentID, err := currentStudent(c)
	if err != nil {
		return err
	}

	var req bookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	visit, err := h.booking.Book(c.Request().Context(), studentID, req.SlotID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, visit)
}

func (h *Handler) CancelVisit(c echo.Context) error {
	studentID, err := currentStudent(c)
	if err != nil {
		return err
	}

	id, err := pathID(c)
	if err != nil {
		return err
	}

	visit, err := h.booking.Cancel(c.Request().Context(), id, studentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, visit)
}

func (h *Handler) ListMySchedules(c echo.Context) error {
	studentID, err := currentStudent(c)
	if err != nil {
		return err
	}

	visits, err := h.booking.ListMySchedules(c.Request().Context(), studentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"visits": emptyIfNil(visits)})
}

func (h *Handler) GenerateSlots(c echo.Context) error {
	var req generateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	week, err := parseDate(req.WeekStart)
	if err != nil {
		return err
	}

	created, err := h.schedule.GenerateSlots(c.Request().Context(), *week)
	if err != nil {
		return err
	}

	h.logger.Info("Slot generation triggered manually",
		zap.String("by", UserIDFromContext(c.Request().Context())),
		zap.String("week_start", req.WeekStart),
		zap.Int("created", created),
	)

	return c.JSON(http.StatusOK, echo.Map{
		"week_start": service.FormatDay(service.WeekStart(*week)),
		"created":    created,
	})
}

func (h *Handler) PurgeSlots(c echo.Context) error {
	var req purgeRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}

	now := h.now()
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			return fmt.Errorf("%w: invalid now %q", model.ErrValidation, req.Now)
		}
		now = parsed
	}

	deleted, err := h.schedule.PurgeExpiredUnbooked(c.Request().Context(), now)
	if err != nil {
		return err
	}

	h.logger.Info("Slot purge triggered manually",
		zap.String("by", UserIDFromContext(c.Request().Context())),
		zap.Int("deleted", deleted),
	)

	return c.JSON(http.StatusOK, echo.Map{"deleted": deleted})
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: malformed request", model.ErrValidation)
	}
	return c.Validate(req)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", model.ErrValidation, c.Param("id"))
	}
	return id, nil
}

func currentStudent(c echo.Context) (int64, error) {
	id := StudentIDFromContext(c.Request().Context())
	if id <= 0 {
		return 0, echo.NewHTTPError(http.StatusForbidden, "token carries no student id")
	}
	return id, nil
}

// emptyIfNil makes empty lists encode as [] instead of null.
func emptyIfNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
