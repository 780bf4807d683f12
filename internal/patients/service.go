package patients

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-desk/internal/observability/metrics"
	"github.com/wolfman30/clinic-desk/internal/persistence"
	"github.com/wolfman30/clinic-desk/pkg/logging"
)

// AppointmentListener is called after an appointment is created. patient is
// nil when the appointment references an unknown patient id.
type AppointmentListener func(appt Appointment, patient *Patient)

// Service is the CRUD and derived-query API over a Store.
type Service struct {
	store     *Store
	logger    *logging.Logger
	metrics   *metrics.StoreMetrics
	now       func() time.Time
	newID     func() string
	loc       atomic.Pointer[time.Location]
	listeners []AppointmentListener
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts successful mutations.
func WithMetrics(m *metrics.StoreMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLocation sets the clinic zone used for "today" and registration dates.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc.Store(loc)
		}
	}
}

// WithAppointmentListener registers a hook run after AddAppointment.
func WithAppointmentListener(fn AppointmentListener) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

// NewService creates the domain service over store.
func NewService(store *Store, opts ...ServiceOption) *Service {
	if store == nil {
		panic("patients: store cannot be nil")
	}
	s := &Service{
		store:  store,
		logger: logging.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	s.loc.Store(time.UTC)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for readiness checks.
func (s *Service) Store() *Store {
	return s.store
}

// SetLocation switches the clinic zone at runtime.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc.Store(loc)
	}
}

// Location returns the clinic zone.
func (s *Service) Location() *time.Location {
	return s.loc.Load()
}

func validatePatientFields(name string, gender Gender, contact string) (Gender, error) {
	if strings.TrimSpace(name) == "" {
		return "", required("name")
	}
	if strings.TrimSpace(string(gender)) == "" {
		return "", required("gender")
	}
	g, ok := LookupGender(string(gender))
	if !ok {
		return "", &ValidationError{Field: "gender", Reason: "must be Male, Female or Other"}
	}
	if strings.TrimSpace(contact) == "" {
		return "", required("contact")
	}
	return g, nil
}

func validateDOB(dob string) error {
	if strings.TrimSpace(dob) == "" {
		return required("dob")
	}
	if !validDate(dob) {
		return &ValidationError{Field: "dob", Reason: "must be a YYYY-MM-DD date"}
	}
	return nil
}

// AddPatient registers a new patient with a fresh id and today's registration
// date. The receipt tracks the background write of the patients collection.
func (s *Service) AddPatient(in NewPatient) (Patient, *persistence.Receipt, error) {
	gender, err := validatePatientFields(in.Name, in.Gender, in.Contact)
	if err != nil {
		return Patient{}, nil, err
	}
	if err := validateDOB(in.DOB); err != nil {
		return Patient{}, nil, err
	}

	var created Patient
	receipt, err := s.store.mutate(func(data *collections) (string, error) {
		created = Patient{
			ID:               s.uniquePatientID(data.patients),
			Name:             strings.TrimSpace(in.Name),
			DOB:              in.DOB,
			Gender:           gender,
			Contact:          strings.TrimSpace(in.Contact),
			Address:          strings.TrimSpace(in.Address),
			RegistrationDate: s.now().In(s.Location()).Format(DateLayout),
			MedicalHistory:   in.MedicalHistory,
		}
		data.patients = append(data.patients, created)
		return persistence.CollectionPatients, nil
	})
	if err != nil {
		return Patient{}, nil, err
	}
	s.metrics.ObserveMutation("add_patient")
	s.logger.Info("patient added", "patient_id", created.ID)
	return created, receipt, nil
}

func (s *Service) uniquePatientID(existing []Patient) string {
	for {
		id := s.newID()
		if findPatient(existing, id) < 0 {
			return id
		}
	}
}

func (s *Service) uniqueAppointmentID(existing []Appointment) string {
	for {
		id := s.newID()
		if findAppointment(existing, id) < 0 {
			return id
		}
	}
}

// FindPatientByID returns the patient, or nil when no patient has that id.
func (s *Service) FindPatientByID(id string) (*Patient, error) {
	var found *Patient
	err := s.store.view(func(data *collections) {
		if i := findPatient(data.patients, id); i >= 0 {
			p := data.patients[i]
			found = &p
		}
	})
	return found, err
}

// UpdatePatient replaces the stored patient with the same id. The id, dob and
// registration date keep their stored values, so the incoming dob is ignored.
// An unknown id is a silent no-op reported as updated=false.
func (s *Service) UpdatePatient(p Patient) (bool, *persistence.Receipt, error) {
	gender, err := validatePatientFields(p.Name, p.Gender, p.Contact)
	if err != nil {
		return false, nil, err
	}

	updated := false
	receipt, err := s.store.mutate(func(data *collections) (string, error) {
		i := findPatient(data.patients, p.ID)
		if i < 0 {
			return "", nil
		}
		current := data.patients[i]
		data.patients[i] = Patient{
			ID:               current.ID,
			Name:             strings.TrimSpace(p.Name),
			DOB:              current.DOB,
			Gender:           gender,
			Contact:          strings.TrimSpace(p.Contact),
			Address:          strings.TrimSpace(p.Address),
			RegistrationDate: current.RegistrationDate,
			MedicalHistory:   p.MedicalHistory,
		}
		updated = true
		return persistence.CollectionPatients, nil
	})
	if err != nil {
		return false, nil, err
	}
	if !updated {
		s.logger.Debug("update for unknown patient ignored", "patient_id", p.ID)
		return false, nil, nil
	}
	s.metrics.ObserveMutation("update_patient")
	return true, receipt, nil
}

// ListPatients returns every patient.
func (s *Service) ListPatients() ([]Patient, error) {
	return s.store.ListPatients()
}

// SearchPatients matches term against name (case-insensitive) or id.
func (s *Service) SearchPatients(term string) ([]Patient, error) {
	var out []Patient
	err := s.store.view(func(data *collections) {
		out = matchPatients(data.patients, term)
	})
	return out, err
}

// AddAppointment books an appointment, snapshotting the patient's current
// name. An unknown patient id still creates the appointment under
// UnknownPatientName.
func (s *Service) AddAppointment(in NewAppointment) (Appointment, *persistence.Receipt, error) {
	patientID := strings.TrimSpace(in.PatientID)
	if patientID == "" {
		return Appointment{}, nil, required("patientId")
	}
	if in.DateTime.IsZero() {
		return Appointment{}, nil, required("dateTime")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Appointment{}, nil, required("reason")
	}
	payment, ok := ParsePaymentStatus(string(in.PaymentStatus))
	if !ok {
		return Appointment{}, nil, &ValidationError{Field: "paymentStatus", Reason: "must be Unpaid, Paid or Waived"}
	}
	if payment == "" {
		payment = PaymentUnpaid
	}
	if in.AmountCents < 0 {
		return Appointment{}, nil, &ValidationError{Field: "amountCents", Reason: "must not be negative"}
	}

	var (
		created Appointment
		patient *Patient
	)
	receipt, err := s.store.mutate(func(data *collections) (string, error) {
		name := UnknownPatientName
		if i := findPatient(data.patients, patientID); i >= 0 {
			p := data.patients[i]
			patient = &p
			name = p.Name
		}
		created = Appointment{
			ID:            s.uniqueAppointmentID(data.appointments),
			PatientID:     patientID,
			PatientName:   name,
			DateTime:      in.DateTime,
			Reason:        strings.TrimSpace(in.Reason),
			Notes:         in.Notes,
			Status:        ParseStatus(string(in.Status)),
			PaymentStatus: payment,
			AmountCents:   in.AmountCents,
		}
		data.appointments = append(data.appointments, created)
		return persistence.CollectionAppointments, nil
	})
	if err != nil {
		return Appointment{}, nil, err
	}

	s.metrics.ObserveMutation("add_appointment")
	if patient == nil {
		s.logger.Warn("appointment booked for unknown patient", "appointment_id", created.ID, "patient_id", patientID)
	} else {
		s.logger.Info("appointment added", "appointment_id", created.ID, "patient_id", patientID)
	}
	for _, fn := range s.listeners {
		fn(created, patient)
	}
	return created, receipt, nil
}

// UpdateAppointment applies a field-level update to status, notes or payment fields.
func (s *Service) UpdateAppointment(id string, upd AppointmentUpdate) (Appointment, *persistence.Receipt, error) {
	var payment PaymentStatus
	if upd.PaymentStatus != nil {
		p, ok := ParsePaymentStatus(string(*upd.PaymentStatus))
		if !ok || p == "" {
			return Appointment{}, nil, &ValidationError{Field: "paymentStatus", Reason: "must be Unpaid, Paid or Waived"}
		}
		payment = p
	}
	if upd.AmountCents != nil && *upd.AmountCents < 0 {
		return Appointment{}, nil, &ValidationError{Field: "amountCents", Reason: "must not be negative"}
	}
	if upd.Status != nil && strings.TrimSpace(string(*upd.Status)) == "" {
		return Appointment{}, nil, required("status")
	}

	var result Appointment
	receipt, err := s.store.mutate(func(data *collections) (string, error) {
		i := findAppointment(data.appointments, id)
		if i < 0 {
			return "", ErrAppointmentNotFound
		}
		a := &data.appointments[i]
		if upd.Status != nil {
			a.Status = ParseStatus(string(*upd.Status))
		}
		if upd.Notes != nil {
			a.Notes = *upd.Notes
		}
		if upd.PaymentStatus != nil {
			a.PaymentStatus = payment
		}
		if upd.AmountCents != nil {
			a.AmountCents = *upd.AmountCents
		}
		result = *a
		return persistence.CollectionAppointments, nil
	})
	if err != nil {
		return Appointment{}, nil, err
	}
	s.metrics.ObserveMutation("update_appointment")
	s.logger.Info("appointment updated", "appointment_id", id, "status", result.Status)
	return result, receipt, nil
}

// ListAppointments returns every appointment, most recent first.
func (s *Service) ListAppointments() ([]Appointment, error) {
	out, err := s.store.ListAppointments()
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// GetAppointmentsByPatientID returns the patient's appointments, most recent first.
func (s *Service) GetAppointmentsByPatientID(patientID string) ([]Appointment, error) {
	var out []Appointment
	err := s.store.view(func(data *collections) {
		out = appointmentsFor(data.appointments, patientID)
	})
	return out, err
}

// GetUpcomingAppointments returns Scheduled appointments after now, soonest
// first. limit <= 0 returns them all.
func (s *Service) GetUpcomingAppointments(limit int) ([]Appointment, error) {
	now := s.now()
	var out []Appointment
	err := s.store.view(func(data *collections) {
		out = upcoming(data.appointments, now, limit)
	})
	return out, err
}

// TotalPatients counts all patients.
func (s *Service) TotalPatients() (int, error) {
	var n int
	err := s.store.view(func(data *collections) { n = len(data.patients) })
	return n, err
}

// TotalAppointments counts all appointments.
func (s *Service) TotalAppointments() (int, error) {
	var n int
	err := s.store.view(func(data *collections) { n = len(data.appointments) })
	return n, err
}

// AppointmentsTodayCount counts appointments of any status on today's date in the clinic zone.
func (s *Service) AppointmentsTodayCount() (int, error) {
	now := s.now()
	loc := s.Location()
	var n int
	err := s.store.view(func(data *collections) { n = countOnDay(data.appointments, now, loc) })
	return n, err
}

// Dashboard gathers the dashboard aggregates from a single consistent view.
func (s *Service) Dashboard(upcomingLimit int) (Dashboard, error) {
	now := s.now()
	loc := s.Location()
	var d Dashboard
	err := s.store.view(func(data *collections) {
		d = Dashboard{
			TotalPatients:          len(data.patients),
			TotalAppointments:      len(data.appointments),
			AppointmentsTodayCount: countOnDay(data.appointments, now, loc),
			Upcoming:               upcoming(data.appointments, now, upcomingLimit),
		}
	})
	return d, err
}
