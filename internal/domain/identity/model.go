package identity

import "encoding/json"

// Doctor maps to the doctor table. NationalID is unique across doctors.
type Doctor struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	NationalID string `db:"national_id" json:"national_id"`
	Specialty  string `db:"specialty" json:"specialty"`
}

// Patient maps to the patient table. DoctorID is nil until a doctor is
// assigned; when set it must name an existing doctor at write time.
type Patient struct {
	ID              int64  `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	NationalID      string `db:"national_id" json:"national_id"`
	Age             int    `db:"age" json:"age"`
	NextAppointment string `db:"next_appointment" json:"next_appointment"`
	DoctorID        *int64 `db:"doctor_id" json:"doctor_id"`
}

type doctorRef struct {
	ID int64 `json:"id"`
}

// UnmarshalJSON accepts the doctor either as "doctor_id" or as an embedded
// "doctor": {"id": n} object. An explicit doctor_id wins.
func (p *Patient) UnmarshalJSON(data []byte) error {
	type plain Patient
	aux := struct {
		*plain
		Doctor *doctorRef `json:"doctor"`
	}{plain: (*plain)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.DoctorID == nil && aux.Doctor != nil && aux.Doctor.ID != 0 {
		id := aux.Doctor.ID
		p.DoctorID = &id
	}
	return nil
}

func (p *Patient) clone() *Patient {
	cp := *p
	if p.DoctorID != nil {
		id := *p.DoctorID
		cp.DoctorID = &id
	}
	return &cp
}
