package patients

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// dateTimeLayouts are accepted for appointment timestamps, most precise first.
// The zone-less forms are what browser datetime-local inputs submit.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseDateTime parses an appointment timestamp. Zone-less values are read in loc.
func ParseDateTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func validDate(value string) bool {
	_, err := time.Parse(DateLayout, value)
	return err == nil
}

// LookupGender maps free-form input onto the gender enumeration and reports
// whether the input was recognised.
func LookupGender(value string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "male", "m", "homme":
		return GenderMale, true
	case "female", "f", "femme":
		return GenderFemale, true
	case "other", "autre":
		return GenderOther, true
	}
	return "", false
}

// ParseGender is LookupGender for stored records: anything unrecognised
// becomes GenderOther.
func ParseGender(value string) Gender {
	if g, ok := LookupGender(value); ok {
		return g
	}
	return GenderOther
}

// ParseStatus maps canonical and localised labels onto Status. Empty input
// yields StatusScheduled; unknown labels are kept verbatim.
func ParseStatus(value string) Status {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "", "scheduled", "prévu", "prevu":
		return StatusScheduled
	case "completed", "terminé", "termine":
		return StatusCompleted
	case "cancelled", "canceled", "annulé", "annule":
		return StatusCancelled
	case "noshow", "no-show", "no_show", "absent":
		return StatusNoShow
	default:
		return Status(trimmed)
	}
}

// ParsePaymentStatus maps payment labels; empty stays empty.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", true
	case "unpaid", "impayé", "non payé":
		return PaymentUnpaid, true
	case "paid", "payé":
		return PaymentPaid, true
	case "waived", "exonéré":
		return PaymentWaived, true
	default:
		return "", false
	}
}

// rejection describes a stored record dropped during load.
type rejection struct {
	Index  int
	ID     string
	Reason string
}

type storedPatient struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DOB              string `json:"dob"`
	Gender           string `json:"gender"`
	Contact          string `json:"contact"`
	Address          string `json:"address"`
	RegistrationDate string `json:"registrationDate"`
	MedicalHistory   string `json:"medicalHistory"`
}

// decodePatients validates stored patient records. Unknown fields are
// dropped; records missing id, name or dob, with malformed dates, or
// repeating an earlier id are rejected.
func decodePatients(raw []json.RawMessage) ([]Patient, []rejection) {
	out := make([]Patient, 0, len(raw))
	var rejected []rejection
	seen := make(map[string]struct{}, len(raw))

	for i, data := range raw {
		var rec storedPatient
		if err := json.Unmarshal(data, &rec); err != nil {
			rejected = append(rejected, rejection{Index: i, Reason: "malformed record"})
			continue
		}
		id := strings.TrimSpace(rec.ID)
		reject := func(reason string) {
			rejected = append(rejected, rejection{Index: i, ID: id, Reason: reason})
		}
		switch {
		case id == "":
			reject("missing id")
			continue
		case strings.TrimSpace(rec.Name) == "":
			reject("missing name")
			continue
		case !validDate(rec.DOB):
			reject("malformed dob")
			continue
		case rec.RegistrationDate != "" && !validDate(rec.RegistrationDate):
			reject("malformed registrationDate")
			continue
		}
		if _, dup := seen[id]; dup {
			reject("duplicate id")
			continue
		}
		seen[id] = struct{}{}

		out = append(out, Patient{
			ID:               id,
			Name:             rec.Name,
			DOB:              rec.DOB,
			Gender:           ParseGender(rec.Gender),
			Contact:          rec.Contact,
			Address:          rec.Address,
			RegistrationDate: rec.RegistrationDate,
			MedicalHistory:   rec.MedicalHistory,
		})
	}
	return out, rejected
}

type storedAppointment struct {
	ID            string `json:"id"`
	PatientID     string `json:"patientId"`
	PatientName   string `json:"patientName"`
	DateTime      string `json:"dateTime"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	AmountCents   int64  `json:"amountCents"`
}

// decodeAppointments validates stored appointment records. Records missing
// id, patientId or dateTime, with an unparseable dateTime, or repeating an
// earlier id are rejected. Empty status becomes Scheduled and localised
// labels map onto canonical members.
func decodeAppointments(raw []json.RawMessage, loc *time.Location) ([]Appointment, []rejection) {
	out := make([]Appointment, 0, len(raw))
	var rejected []rejection
	seen := make(map[string]struct{}, len(raw))

	for i, data := range raw {
		var rec storedAppointment
		if err := json.Unmarshal(data, &rec); err != nil {
			rejected = append(rejected, rejection{Index: i, Reason: "malformed record"})
			continue
		}
		id := strings.TrimSpace(rec.ID)
		reject := func(reason string) {
			rejected = append(rejected, rejection{Index: i, ID: id, Reason: reason})
		}
		if id == "" {
			reject("missing id")
			continue
		}
		if strings.TrimSpace(rec.PatientID) == "" {
			reject("missing patientId")
			continue
		}
		if strings.TrimSpace(rec.DateTime) == "" {
			reject("missing dateTime")
			continue
		}
		when, err := ParseDateTime(rec.DateTime, loc)
		if err != nil {
			reject("malformed dateTime")
			continue
		}
		if _, dup := seen[id]; dup {
			reject("duplicate id")
			continue
		}
		seen[id] = struct{}{}

		payment, ok := ParsePaymentStatus(rec.PaymentStatus)
		if !ok {
			payment = PaymentUnpaid
		}
		name := rec.PatientName
		if strings.TrimSpace(name) == "" {
			name = UnknownPatientName
		}

		out = append(out, Appointment{
			ID:            id,
			PatientID:     strings.TrimSpace(rec.PatientID),
			PatientName:   name,
			DateTime:      when,
			Reason:        rec.Reason,
			Notes:         rec.Notes,
			Status:        ParseStatus(rec.Status),
			PaymentStatus: payment,
			AmountCents:   rec.AmountCents,
		})
	}
	return out, rejected
}

func encodeRecords[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("patients: encode record: %w", err)
		}
		out = append(out, data)
	}
	return out, nil
}
