package patients

import "time"

// defaultPatients is the first-run dataset for an absent patients collection.
func defaultPatients(now time.Time) []Patient {
	registered := now.AddDate(0, -6, 0).Format(DateLayout)
	return []Patient{
		{
			ID:               "1",
			Name:             "John Doe",
			DOB:              "1985-03-15",
			Gender:           GenderMale,
			Contact:          "+1 555-0101 / john.doe@example.com",
			Address:          "12 Main Street, Springfield",
			RegistrationDate: registered,
			MedicalHistory:   "Hypertension diagnosed 2019, controlled with lisinopril 10mg daily. Penicillin allergy. Appendectomy in 2005.",
		},
		{
			ID:               "2",
			Name:             "Jane Smith",
			DOB:              "1992-07-22",
			Gender:           GenderFemale,
			Contact:          "+1 555-0102 / jane.smith@example.com",
			Address:          "48 Oak Avenue, Springfield",
			RegistrationDate: registered,
			MedicalHistory:   "Seasonal asthma managed with albuterol inhaler as needed. No known drug allergies.",
		},
	}
}

// defaultAppointments is the first-run dataset for an absent appointments
// collection, anchored on the seeding day in loc.
func defaultAppointments(now time.Time, loc *time.Location) []Appointment {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	at := func(days, hour, minute int) time.Time {
		return day.AddDate(0, 0, days).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	}

	return []Appointment{
		{
			ID:            "101",
			PatientID:     "1",
			PatientName:   "John Doe",
			DateTime:      at(1, 10, 0),
			Reason:        "Blood pressure follow-up",
			Status:        StatusScheduled,
			PaymentStatus: PaymentUnpaid,
			AmountCents:   8000,
		},
		{
			ID:            "102",
			PatientID:     "2",
			PatientName:   "Jane Smith",
			DateTime:      at(3, 14, 30),
			Reason:        "Asthma review",
			Status:        StatusScheduled,
			PaymentStatus: PaymentUnpaid,
			AmountCents:   6500,
		},
		{
			ID:            "103",
			PatientID:     "1",
			PatientName:   "John Doe",
			DateTime:      at(-7, 9, 15),
			Reason:        "Annual physical",
			Notes:         "Routine labs ordered.",
			Status:        StatusCompleted,
			PaymentStatus: PaymentPaid,
			AmountCents:   12000,
		},
	}
}
