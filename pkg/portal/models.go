package portal

import (
	"bytes"
	"encoding/json"
)

// Envelope is the response wrapper used by every portal endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Body    json.RawMessage `json:"body"`
	Message string          `json:"message,omitempty"`
}

// decodeBody decodes the envelope body into out. A missing or null body leaves out untouched.
func (e *Envelope) decodeBody(out any) error {
	if len(e.Body) == 0 || bytes.Equal(bytes.TrimSpace(e.Body), []byte("null")) {
		return nil
	}
	return json.Unmarshal(e.Body, out)
}

// The portal models below decode the fields the proxy works with and keep the
// complete upstream object in raw, so re-encoding emits exactly what the portal sent.
// Field decoding is lenient; see text and id.

// Period is a registration period ("dot").
type Period struct {
	ID   int64  `json:"id"`
	Name string `json:"tenHocKy"`

	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Period) UnmarshalJSON(data []byte) error {
	var w struct {
		ID   id   `json:"id"`
		Name text `json:"tenHocKy"`
	}
	if err := decodeItem(data, &w); err != nil {
		return err
	}
	*p = Period{ID: int64(w.ID), Name: string(w.Name)}
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Period) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type plain Period
	return json.Marshal(plain(p))
}

// Subject is a course offered within a period.
type Subject struct {
	Code    string      `json:"maHocPhan"`
	Name    string      `json:"tenMonHoc"`
	Credits string `json:"soTinChi,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Subject) UnmarshalJSON(data []byte) error {
	var w struct {
		Code    text `json:"maHocPhan"`
		Name    text `json:"tenMonHoc"`
		Credits text `json:"soTinChi"`
	}
	if err := decodeItem(data, &w); err != nil {
		return err
	}
	*s = Subject{Code: string(w.Code), Name: string(w.Name), Credits: string(w.Credits)}
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Subject) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	type plain Subject
	return json.Marshal(plain(s))
}

// Class is an offered section of a Subject.
type Class struct {
	ID        int64  `json:"id"`
	ClassCode string `json:"maLopHocPhan"`

	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Class) UnmarshalJSON(data []byte) error {
	var w struct {
		ID        id   `json:"id"`
		ClassCode text `json:"maLopHocPhan"`
	}
	if err := decodeItem(data, &w); err != nil {
		return err
	}
	*c = Class{ID: int64(w.ID), ClassCode: string(w.ClassCode)}
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Class) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	type plain Class
	return json.Marshal(plain(c))
}

// Schedule is a meeting-time entry of a Class.
type Schedule struct {
	DayOfWeek  string `json:"thu,omitempty"`
	PeriodSlot string `json:"tietHoc,omitempty"`
	StartDate  string `json:"ngayBatDau,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var w struct {
		DayOfWeek  text `json:"thu"`
		PeriodSlot text `json:"tietHoc"`
		StartDate  text `json:"ngayBatDau"`
	}
	if err := decodeItem(data, &w); err != nil {
		return err
	}
	*s = Schedule{DayOfWeek: string(w.DayOfWeek), PeriodSlot: string(w.PeriodSlot), StartDate: string(w.StartDate)}
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Schedule) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	type plain Schedule
	return json.Marshal(plain(s))
}

// Registration is an existing enrollment of the learner in a Class.
type Registration struct {
	ID          int64  `json:"id"`
	SubjectName string `json:"tenMonHoc"`
	ClassID     int64  `json:"idLopHocPhan,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Registration) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          id   `json:"id"`
		SubjectName text `json:"tenMonHoc"`
		ClassID     id   `json:"idLopHocPhan"`
	}
	if err := decodeItem(data, &w); err != nil {
		return err
	}
	*r = Registration{ID: int64(w.ID), SubjectName: string(w.SubjectName), ClassID: int64(w.ClassID)}
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Registration) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain Registration
	return json.Marshal(plain(r))
}
