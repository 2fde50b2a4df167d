package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/internal/schedule"
)

type memPlaces map[uuid.UUID]models.Place

func (m memPlaces) GetByID(_ context.Context, id uuid.UUID) (*models.Place, error) {
	p, ok := m[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &p, nil
}

func (m memPlaces) ListByCompany(_ context.Context, companyID uuid.UUID) ([]models.Place, error) {
	var out []models.Place
	for _, p := range m {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memBookings struct {
	list []models.Booking
	err  error
}

func (m *memBookings) ListBookings(context.Context, uuid.UUID, time.Time) ([]models.Booking, error) {
	return m.list, m.err
}

// thursday is 2026-10-15; the place is open Monday to Friday, 09:00 to 17:00.
var thursday = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T, bookings ...models.Booking) (*Service, models.Place) {
	t.Helper()
	place := models.Place{ID: uuid.New(), CompanyID: uuid.New(), Name: "Lobby", OpenDays: []int{1, 2, 3, 4, 5}, OpensAt: "09:00", ClosesAt: "17:00"}
	return NewService(memPlaces{place.ID: place}, &memBookings{list: bookings}, nil), place
}

func iv(t *testing.T, start, end string) schedule.Interval {
	t.Helper()
	i, err := schedule.ParseInterval(start, end)
	require.NoError(t, err)
	return i
}

func TestSlots(t *testing.T) {
	svc, place := newService(t, models.Booking{Start: "10:00", End: "11:00"})
	day, err := svc.Slots(context.Background(), place.ID, thursday)
	require.NoError(t, err)
	assert.True(t, day.Open)
	assert.Equal(t, "2026-10-15", day.Date)
	assert.Equal(t, []schedule.Interval{iv(t, "09:00", "10:00"), iv(t, "11:00", "17:00")}, day.Slots)
}

func TestSlotsClosedDay(t *testing.T) {
	svc, place := newService(t)
	day, err := svc.Slots(context.Background(), place.ID, thursday.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.False(t, day.Open)
	assert.Empty(t, day.Slots)
	assert.NotNil(t, day.Slots)
}

func TestSlotsErrors(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Slots(context.Background(), uuid.New(), thursday)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	place := models.Place{ID: uuid.New(), OpenDays: []int{4}, OpensAt: "09:00", ClosesAt: "17:00"}
	svc = NewService(memPlaces{place.ID: place}, &memBookings{err: errors.New("db down")}, nil)
	_, err = svc.Slots(context.Background(), place.ID, thursday)
	assert.ErrorIs(t, err, apperr.ErrCollaborator)
}

func TestSlotsRejectsMalformedBooking(t *testing.T) {
	for _, b := range []models.Booking{
		{InvitationID: uuid.New(), Start: "10:00", End: "1100"},
		{InvitationID: uuid.New(), Start: "bad", End: "11:00"},
		{InvitationID: uuid.New(), Start: "11:00", End: "10:00"},
	} {
		svc, place := newService(t, b)
		_, err := svc.Slots(context.Background(), place.ID, thursday)
		assert.ErrorIs(t, err, apperr.ErrCollaborator, "%+v", b)
		assert.ErrorContains(t, err, b.InvitationID.String())

		err = svc.CheckRange(context.Background(), place.ID, thursday, iv(t, "10:00", "11:00"))
		assert.ErrorIs(t, err, apperr.ErrCollaborator, "a malformed row must not free its time")
	}
}

func TestOptions(t *testing.T) {
	svc, place := newService(t, models.Booking{Start: "09:00", End: "11:00"})
	opts, err := svc.Options(context.Background(), place.ID, thursday, iv(t, "11:00", "17:00"))
	require.NoError(t, err)
	require.Len(t, opts.Starts, 12)
	require.Len(t, opts.Ends, 12)
	assert.Equal(t, "11:00", opts.Starts[0].String())
	assert.Equal(t, "16:30", opts.Starts[11].String())
	assert.Equal(t, "11:30", opts.Ends[0].String())
	assert.Equal(t, "17:00", opts.Ends[11].String())

	_, err = svc.Options(context.Background(), place.ID, thursday, iv(t, "12:00", "17:00"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCheckRange(t *testing.T) {
	svc, place := newService(t, models.Booking{Start: "10:00", End: "11:00"})
	ctx := context.Background()

	assert.NoError(t, svc.CheckRange(ctx, place.ID, thursday, iv(t, "11:00", "12:30")))
	assert.ErrorIs(t, svc.CheckRange(ctx, place.ID, thursday, iv(t, "09:30", "10:30")), apperr.ErrConflict)
	assert.ErrorIs(t, svc.CheckRange(ctx, place.ID, thursday, iv(t, "08:00", "09:30")), apperr.ErrValidation)
	assert.ErrorIs(t, svc.CheckRange(ctx, place.ID, thursday, iv(t, "11:15", "12:00")), apperr.ErrValidation)
	assert.ErrorIs(t, svc.CheckRange(ctx, place.ID, thursday.AddDate(0, 0, 2), iv(t, "11:00", "12:00")), apperr.ErrValidation)
}

func TestHandlerSlots(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, place := newService(t, models.Booking{Start: "10:00", End: "11:00"})
	r := gin.New()
	NewHandler(svc).Register(r.Group("/places"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/places/"+place.ID.String()+"/slots?date=2026-10-15", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data DaySlots `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data.Slots, 2)
	assert.Contains(t, rec.Body.String(), `{"start":"09:00","end":"10:00"}`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/places/"+place.ID.String()+"/slots?date=tomorrow", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/places/"+uuid.NewString()+"/slots?date=2026-10-15", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/places/"+place.ID.String()+"/slots/options?date=2026-10-15&start=11:00&end=17:00", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/places?company_id="+place.CompanyID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Lobby")
}
