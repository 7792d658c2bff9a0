package academy

import (
	"github.com/yigit/academydesk/internal/resource"
	"github.com/yigit/academydesk/internal/session"
	"github.com/yigit/academydesk/internal/store"
)

// Resource slices, one per entity
var (
	Students     = resource.New("students", idOf[Student])
	Employees    = resource.New("employees", idOf[Employee])
	Payments     = resource.New("payments", idOf[Payment])
	Timetable    = resource.New("timetable", idOf[TimetableEntry])
	Exams        = resource.New("exams", idOf[Exam])
	Expenditures = resource.New("expenditures", idOf[Expenditure])
	Lectures     = resource.New("lectures", idOf[LectureMaterial])
)

// API paths relative to the configured base URL
const (
	PathLogin        = "/auth/login"
	PathStudents     = "/students"
	PathEmployees    = "/employees"
	PathPayments     = "/payments"
	PathTimetable    = "/timetable"
	PathExams        = "/exams"
	PathExpenditures = "/expenditures"
	PathLectures     = "/lectures"
)

// State is the whole console state
type State struct {
	Session      session.State                   `json:"session"`
	Students     resource.State[Student]         `json:"students"`
	Employees    resource.State[Employee]        `json:"employees"`
	Payments     resource.State[Payment]         `json:"payments"`
	Timetable    resource.State[TimetableEntry]  `json:"timetable"`
	Exams        resource.State[Exam]            `json:"exams"`
	Expenditures resource.State[Expenditure]     `json:"expenditures"`
	Lectures     resource.State[LectureMaterial] `json:"lectures"`
}

// Reduce folds action into every slice
func Reduce(s State, action store.Action) State {
	s.Session = session.Reduce(s.Session, action)
	s.Students = Students.Reduce(s.Students, action)
	s.Employees = Employees.Reduce(s.Employees, action)
	s.Payments = Payments.Reduce(s.Payments, action)
	s.Timetable = Timetable.Reduce(s.Timetable, action)
	s.Exams = Exams.Reduce(s.Exams, action)
	s.Expenditures = Expenditures.Reduce(s.Expenditures, action)
	s.Lectures = Lectures.Reduce(s.Lectures, action)
	return s
}

// SessionToken reads the bearer token for the dispatch middleware
func SessionToken(s State) string {
	return session.Token(s.Session)
}
