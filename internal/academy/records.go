package academy

import "time"

// Student is an enrolled learner
type Student struct {
	ID    string  `json:"id"`
	Name  string  `json:"Name" binding:"required"`
	Class string  `json:"Class" binding:"required"`
	Phone string  `json:"Phone" binding:"omitempty,phone"`
	Fees  float64 `json:"Fees" binding:"gte=0"`
}

// Employee is a teacher or staff member
type Employee struct {
	ID     string  `json:"id"`
	Name   string  `json:"Name" binding:"required"`
	Role   string  `json:"Role" binding:"required"`
	Salary float64 `json:"Salary" binding:"gte=0"`
}

// Payment is a fee payment made by a student
type Payment struct {
	ID        string    `json:"id"`
	StudentID string    `json:"StudentID" binding:"required"`
	Amount    float64   `json:"Amount" binding:"gt=0"`
	PaidAt    time.Time `json:"PaidAt"`
	Method    string    `json:"Method" binding:"omitempty,oneof=cash card transfer"`
}

// TimetableEntry is one scheduled lecture slot
type TimetableEntry struct {
	ID      string `json:"id"`
	Class   string `json:"Class" binding:"required"`
	Subject string `json:"Subject" binding:"required"`
	Teacher string `json:"Teacher"`
	Day     string `json:"Day" binding:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Start   string `json:"Start" binding:"required,clocktime"`
	End     string `json:"End" binding:"required,clocktime"`
}

// Exam is an exam with per-student marks
type Exam struct {
	ID         string             `json:"id"`
	Class      string             `json:"Class" binding:"required"`
	Subject    string             `json:"Subject" binding:"required"`
	Date       time.Time          `json:"Date"`
	TotalMarks float64            `json:"TotalMarks" binding:"gt=0"`
	Marks      map[string]float64 `json:"Marks,omitempty"`
}

// Expenditure is money spent by the academy
type Expenditure struct {
	ID      string    `json:"id"`
	Title   string    `json:"Title" binding:"required"`
	Amount  float64   `json:"Amount" binding:"gt=0"`
	SpentAt time.Time `json:"SpentAt"`
}

// LectureMaterial is an uploaded handout or recording link
type LectureMaterial struct {
	ID      string `json:"id"`
	Title   string `json:"Title" binding:"required"`
	Class   string `json:"Class" binding:"required"`
	FileURL string `json:"FileURL" binding:"required,url"`
}

// Record is implemented by every entity the console manages
type Record interface {
	RecordID() string
}

func (s Student) RecordID() string         { return s.ID }
func (e Employee) RecordID() string        { return e.ID }
func (p Payment) RecordID() string         { return p.ID }
func (t TimetableEntry) RecordID() string  { return t.ID }
func (e Exam) RecordID() string            { return e.ID }
func (e Expenditure) RecordID() string     { return e.ID }
func (l LectureMaterial) RecordID() string { return l.ID }

func idOf[T Record](v T) string {
	return v.RecordID()
}
