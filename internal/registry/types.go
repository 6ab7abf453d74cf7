package registry

// Patient is a patient record as returned by the Seguimiento backend.
type Patient struct {
	ID              string       `json:"id"`
	Name            string       `json:"nombre"`
	Phone           string       `json:"telefono"`
	CardID          string       `json:"carnet_identidad"`
	LastVisit       string       `json:"ultima_visita,omitempty"`
	NextAppointment *Appointment `json:"proxima_cita,omitempty"`
}

// Appointment is an appointment record owned by the Seguimiento backend.
// ScheduledFor carries the backend's ISO timestamp (e.g. "2025-10-20T10:00:00.000Z").
type Appointment struct {
	ID           string `json:"id"`
	PatientID    string `json:"id_paciente"`
	ScheduledFor string `json:"fecha_programada"`
	Reason       string `json:"motivo"`
	Status       string `json:"estado"`
	Type         string `json:"tipo"`
}

// UpdateAppointmentRequest is the payload for rescheduling an appointment.
type UpdateAppointmentRequest struct {
	PatientID    string `json:"id_paciente"`
	ScheduledFor string `json:"fecha_programada"`
	Reason       string `json:"motivo"`
	StatusID     int    `json:"estado_id"`
}
