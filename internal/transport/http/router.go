// Package http serves the JSON API used by the mobile app and the admin
// screens.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"lifecoach/backend/internal/booking"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/service/auth"
	"lifecoach/backend/internal/service/chat"
	"lifecoach/backend/internal/service/contact"
)

type Authenticator interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (auth.Session, error)
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	Parse(token string) (auth.Identity, error)
}

type ServiceCatalog interface {
	Active() []domain.Service
	ByID(id string) (domain.Service, error)
}

type Booking interface {
	Slots() []domain.DaySlots
	Start(deepLinkServiceID, userID string) booking.View
	Get(id, userID string) (booking.View, error)
	SelectService(id, userID, serviceID string) (booking.View, error)
	SelectSchedule(id, userID, date, slotID, notes string) (booking.View, error)
	Continue(ctx context.Context, id, userID string) (booking.View, error)
	Back(id, userID string) (booking.View, bool, error)
}

// Appointments is the per-user read side.
type Appointments interface {
	List(ctx context.Context, userID string) ([]domain.Appointment, error)
	Upcoming(ctx context.Context, userID string, now time.Time) ([]domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

// AppointmentStore is the cached admin view that every write goes through.
type AppointmentStore interface {
	Appointments() []domain.Appointment
	Refresh(ctx context.Context)
	Err() error
	UpdateStatus(ctx context.Context, id uuid.UUID, next domain.AppointmentStatus) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Chat interface {
	FetchConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	FetchMessages(ctx context.Context, conversationID, viewerID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, in chat.SendInput) (domain.Message, error)
	MarkAsRead(ctx context.Context, conversationID, userID string, messageIDs []string) error
}

type Podcasts interface {
	Series() []domain.PodcastSeries
	SeriesByID(id string) (domain.PodcastSeries, bool)
	EpisodesFor(seriesID string) []domain.PodcastEpisode
	Counts() map[string]int
	LastUpdated() time.Time
}

type PodcastRefresher interface {
	Trigger(ctx context.Context) error
}

type Contact interface {
	Submit(ctx context.Context, in contact.SubmitInput) (domain.ContactMessage, error)
	List(ctx context.Context, status domain.ContactStatus) ([]domain.ContactMessage, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ContactStatus) (domain.ContactMessage, error)
}

type Devices interface {
	RegisterDevice(ctx context.Context, userID, token string) (domain.Device, error)
}

type Realtime interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

type Health interface {
	Probe(ctx context.Context) bool
}

type Deps struct {
	Auth             Authenticator
	Services         ServiceCatalog
	Booking          Booking
	Appointments     Appointments
	AppointmentStore AppointmentStore
	Chat             Chat
	Podcasts         Podcasts
	PodcastRefresher PodcastRefresher
	Contact          Contact
	Devices          Devices
	Realtime         Realtime
	Health           Health
}

type Options struct {
	RequestTimeout time.Duration
	CORSOrigins    []string
	Now            func() time.Time
}

type server struct {
	Deps
	now func() time.Time
	log *slog.Logger
}

// NewRouter wires every route. The returned handler includes recovery, CORS,
// logging, the request timeout and bearer authentication.
func NewRouter(deps Deps, opts Options, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &server{Deps: deps, now: opts.Now, log: log.With(slog.String("component", "http"))}

	r := mux.NewRouter()
	r.Use(logging(s.log))
	r.Use(requestTimeout(opts.RequestTimeout))
	r.Use(authenticate(deps.Auth))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "Route not found")
	})

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Anonymous or optionally authenticated.
	v1.HandleFunc("/auth/signup", s.signUp).Methods(http.MethodPost)
	v1.HandleFunc("/auth/signin", s.signIn).Methods(http.MethodPost)
	v1.HandleFunc("/services", s.listServices).Methods(http.MethodGet)
	v1.HandleFunc("/services/{id}", s.getService).Methods(http.MethodGet)
	v1.HandleFunc("/slots", s.listSlots).Methods(http.MethodGet)
	v1.HandleFunc("/booking/sessions", s.startBooking).Methods(http.MethodPost)
	v1.HandleFunc("/booking/sessions/{id}", s.getBooking).Methods(http.MethodGet)
	v1.HandleFunc("/booking/sessions/{id}/service", s.selectBookingService).Methods(http.MethodPost)
	v1.HandleFunc("/booking/sessions/{id}/schedule", s.selectBookingSchedule).Methods(http.MethodPost)
	v1.HandleFunc("/booking/sessions/{id}/continue", s.continueBooking).Methods(http.MethodPost)
	v1.HandleFunc("/booking/sessions/{id}/back", s.backBooking).Methods(http.MethodPost)
	v1.HandleFunc("/podcasts", s.listPodcasts).Methods(http.MethodGet)
	v1.HandleFunc("/podcasts/{id}/episodes", s.listEpisodes).Methods(http.MethodGet)
	v1.HandleFunc("/contact", s.submitContact).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(requireAdmin)
	admin.HandleFunc("/appointments", s.adminListAppointments).Methods(http.MethodGet)
	admin.HandleFunc("/appointments/refresh", s.adminRefreshAppointments).Methods(http.MethodPost)
	admin.HandleFunc("/appointments/{id}/status", s.adminUpdateAppointmentStatus).Methods(http.MethodPost)
	admin.HandleFunc("/appointments/{id}", s.adminDeleteAppointment).Methods(http.MethodDelete)
	admin.HandleFunc("/podcasts/refresh", s.adminRefreshPodcasts).Methods(http.MethodPost)
	admin.HandleFunc("/contact", s.adminListContact).Methods(http.MethodGet)
	admin.HandleFunc("/contact/{id}/status", s.adminUpdateContactStatus).Methods(http.MethodPost)

	user := v1.NewRoute().Subrouter()
	user.Use(requireUser)
	user.HandleFunc("/appointments", s.listAppointments).Methods(http.MethodGet)
	user.HandleFunc("/appointments/{id}/cancel", s.cancelAppointment).Methods(http.MethodPost)
	user.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet)
	user.HandleFunc("/conversations/{id}/messages", s.listMessages).Methods(http.MethodGet)
	user.HandleFunc("/conversations/{id}/read", s.markRead).Methods(http.MethodPost)
	user.HandleFunc("/messages", s.sendMessage).Methods(http.MethodPost)
	user.HandleFunc("/devices", s.registerDevice).Methods(http.MethodPost)
	user.HandleFunc("/ws", s.websocket).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins(opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: s.log}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil && !s.Health.Probe(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}
