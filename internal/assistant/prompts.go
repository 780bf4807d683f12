package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-desk/internal/patients"
)

const maxContextAppointments = 5

const summarySystemPrompt = `You are a clinical documentation assistant working for a medical practice.
Summarize the patient history you are given for a busy clinician.

Rules:
- Use only the information provided. Never invent diagnoses, medications or dates.
- Lead with active problems, then medications and allergies, then relevant past history.
- Keep it under 150 words in plain sentences or short bullet points.
- If the history is too sparse to summarize, say so in one sentence.`

const triageSystemPrompt = `You are a triage assistant for a medical practice front desk.
Assess the reported symptoms and answer with a single JSON object and nothing else:

{"urgency": "low|moderate|high|emergency", "rationale": "...", "recommendations": ["..."]}

Rules:
- "emergency" means the patient should call emergency services now.
- "high" means same-day clinical review. "moderate" means within a few days. "low" means routine.
- The rationale is one or two sentences. Recommendations are short actionable steps for the staff.
- When in doubt, choose the more urgent level.`

// patientContext renders the patient facts the model may rely on.
func patientContext(p *patients.Patient, appts []patients.Appointment, now time.Time) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s\n", p.Name)
	if dob, err := time.Parse(patients.DateLayout, p.DOB); err == nil {
		fmt.Fprintf(&b, "Age: %d\n", ageAt(dob, now))
	}
	if p.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", p.Gender)
	}
	if len(appts) > 0 {
		b.WriteString("Recent appointments:\n")
		for i, a := range appts {
			if i == maxContextAppointments {
				break
			}
			fmt.Fprintf(&b, "- %s (%s): %s", a.DateTime.Format(patients.DateLayout), a.Status, a.Reason)
			if notes := strings.TrimSpace(a.Notes); notes != "" {
				fmt.Fprintf(&b, ". Notes: %s", notes)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func buildSummaryPrompt(history, facts string) string {
	var b strings.Builder
	if facts != "" {
		b.WriteString(facts)
		b.WriteString("\n")
	}
	b.WriteString("Medical history:\n")
	if history == "" {
		b.WriteString("(none recorded)\n")
	} else {
		b.WriteString(history)
		b.WriteString("\n")
	}
	b.WriteString("\nWrite the summary now.")
	return b.String()
}

func buildTriagePrompt(symptoms, facts, history string) string {
	var b strings.Builder
	if facts != "" {
		b.WriteString(facts)
		b.WriteString("\n")
	}
	if history != "" {
		fmt.Fprintf(&b, "Medical history:\n%s\n\n", history)
	}
	fmt.Fprintf(&b, "Reported symptoms:\n%s\n\nRespond with the JSON object only.", symptoms)
	return b.String()
}

func ageAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
