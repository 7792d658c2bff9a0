package mockapi

import (
	"context"
	"errors"
	"time"

	"github.com/yigit/academydesk/internal/academy"
)

// Seed creates a small set of sample records
func Seed(repos *Repositories) error {
	ctx := context.Background()
	var finalErr error
	collect := func(err error) {
		finalErr = errors.Join(finalErr, err)
	}

	asha, err := repos.Students.Create(ctx, academy.Student{Name: "Asha", Class: "10A", Phone: "555-0101", Fees: 1200})
	collect(err)
	_, err = repos.Students.Create(ctx, academy.Student{Name: "Ravi", Class: "10B", Phone: "555-0102", Fees: 1200})
	collect(err)

	_, err = repos.Employees.Create(ctx, academy.Employee{Name: "Meera", Role: "teacher", Salary: 3000})
	collect(err)

	_, err = repos.Payments.Create(ctx, academy.Payment{
		StudentID: asha.ID,
		Amount:    400,
		PaidAt:    time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC),
		Method:    "cash",
	})
	collect(err)

	_, err = repos.Timetable.Create(ctx, academy.TimetableEntry{
		Class: "10A", Subject: "Mathematics", Teacher: "Meera", Day: "Monday", Start: "09:00", End: "10:00",
	})
	collect(err)

	_, err = repos.Exams.Create(ctx, academy.Exam{
		Class:      "10A",
		Subject:    "Mathematics",
		Date:       time.Date(2026, time.November, 20, 9, 0, 0, 0, time.UTC),
		TotalMarks: 100,
	})
	collect(err)

	_, err = repos.Expenditures.Create(ctx, academy.Expenditure{
		Title:   "Whiteboard markers",
		Amount:  35,
		SpentAt: time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC),
	})
	collect(err)

	_, err = repos.Lectures.Create(ctx, academy.LectureMaterial{
		Title: "Quadratic equations", Class: "10A", FileURL: "https://files.academy.local/math/quadratics.pdf",
	})
	collect(err)

	return finalErr
}
