// Package patients owns the clinic's patient and appointment collections:
// the in-memory store, the domain operations over it, and their HTTP surface.
package patients

import "time"

// DateLayout is the calendar-date format used for dob and registrationDate.
const DateLayout = "2006-01-02"

// UnknownPatientName is snapshotted into appointments whose patient id does not resolve.
const UnknownPatientName = "Unknown Patient"

// Gender is the enumerated patient gender.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Status is the appointment lifecycle state. It is an open enumeration; the
// listed members are the canonical ones.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "NoShow"
)

// PaymentStatus is the payment sub-state of an appointment.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
	PaymentWaived PaymentStatus = "Waived"
)

// Patient is a registered clinic patient.
type Patient struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DOB              string `json:"dob"`
	Gender           Gender `json:"gender"`
	Contact          string `json:"contact"`
	Address          string `json:"address"`
	RegistrationDate string `json:"registrationDate"`
	MedicalHistory   string `json:"medicalHistory"`
}

// Appointment is a scheduled visit. PatientName is a snapshot of the
// patient's name when the appointment was booked and does not follow renames.
type Appointment struct {
	ID            string        `json:"id"`
	PatientID     string        `json:"patientId"`
	PatientName   string        `json:"patientName"`
	DateTime      time.Time     `json:"dateTime"`
	Reason        string        `json:"reason"`
	Notes         string        `json:"notes,omitempty"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	AmountCents   int64         `json:"amountCents,omitempty"`
}

// NewPatient carries every Patient field the caller supplies.
type NewPatient struct {
	Name           string `json:"name"`
	DOB            string `json:"dob"`
	Gender         Gender `json:"gender"`
	Contact        string `json:"contact"`
	Address        string `json:"address"`
	MedicalHistory string `json:"medicalHistory"`
}

// NewAppointment carries every Appointment field the caller supplies.
type NewAppointment struct {
	PatientID     string        `json:"patientId"`
	DateTime      time.Time     `json:"dateTime"`
	Reason        string        `json:"reason"`
	Notes         string        `json:"notes,omitempty"`
	Status        Status        `json:"status,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	AmountCents   int64         `json:"amountCents,omitempty"`
}

// AppointmentUpdate lists the mutable appointment fields; nil means unchanged.
type AppointmentUpdate struct {
	Status        *Status        `json:"status,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	PaymentStatus *PaymentStatus `json:"paymentStatus,omitempty"`
	AmountCents   *int64         `json:"amountCents,omitempty"`
}

// Dashboard is the aggregate view served to the dashboard page.
type Dashboard struct {
	TotalPatients          int           `json:"totalPatients"`
	TotalAppointments      int           `json:"totalAppointments"`
	AppointmentsTodayCount int           `json:"appointmentsTodayCount"`
	Upcoming               []Appointment `json:"upcoming"`
}
