package table

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// SampleOptions controls the synthetic workbook.
type SampleOptions struct {
	Seed int64
	Rows int
	// Now anchors join dates; zero means 2025-01-01.
	Now time.Time
}

var (
	sampleDepartments = []string{"Engineering", "Sales", "Marketing", "HR", "Finance"}
	sampleFirst       = []string{"Ava", "Liam", "Noah", "Emma", "Mia", "Lucas", "Zoe", "Omar", "Priya", "Chen", "Sofia", "Mateo", "Hana", "Ivan", "Leila", "Kofi"}
	sampleLast        = []string{"Garcia", "Smith", "Nguyen", "Patel", "Kim", "Okafor", "Rossi", "Müller", "Silva", "Cohen", "Tanaka", "Haddad"}
	sampleTitles      = []string{"Analyst", "Engineer", "Manager", "Designer", "Consultant", "Accountant", "Recruiter", "Architect"}
	sampleCities      = []string{"Austin", "Boston", "Denver", "Seattle", "Chicago", "Atlanta", "Portland", "Phoenix"}
	sampleFeedback    = []string{
		"Excellent performance, a real team player.",
		"Needs to improve on deadlines.",
		"Struggling with the new software, needs training.",
		"Very positive attitude, great with clients.",
		"Consistently meets expectations.",
		"Poor communication skills.",
		"A rising star, marked for promotion.",
		"Often late, attendance is an issue.",
		"Fantastic problem solver.",
	}
	sampleProjects = []string{"Alpha Launch", "Beta Test", "Project Phoenix", "Data Migration", "Security Audit"}
	sampleManagers = []string{"Alice Chen", "Bob Smith", "Charlie Lee"}
)

// Sample builds the Employees and Projects tables used for demos and tests.
// Salaries are log-normal, about 5% of performance scores are missing and a
// handful of rows carry salary or project-count outliers.
func Sample(opts SampleOptions) (employees, projects *Table) {
	if opts.Rows <= 0 {
		opts.Rows = 1000
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	n := opts.Rows

	cols := map[string][]interface{}{}
	order := []string{"EmployeeID", "Name", "Email", "JobTitle", "Department", "Age", "Salary",
		"JoinDate", "City", "PerformanceScore", "OnLeave", "Projects", "LastFeedback"}
	for _, c := range order {
		cols[c] = make([]interface{}, n)
	}

	ids := make([]string, n)
	for i := 0; i < n; i++ {
		first := sampleFirst[rng.Intn(len(sampleFirst))]
		last := sampleLast[rng.Intn(len(sampleLast))]
		ids[i] = fmt.Sprintf("E%d", 1000+i)
		salary := math.Exp(math.Log(75000) + 0.5*rng.NormFloat64())
		joined := now.AddDate(0, 0, -rng.Intn(5*365))

		cols["EmployeeID"][i] = ids[i]
		cols["Name"][i] = first + " " + last
		cols["Email"][i] = fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), i)
		cols["JobTitle"][i] = sampleTitles[rng.Intn(len(sampleTitles))]
		cols["Department"][i] = sampleDepartments[rng.Intn(len(sampleDepartments))]
		cols["Age"][i] = float64(22 + rng.Intn(44))
		cols["Salary"][i] = RoundTo(salary, 2)
		cols["JoinDate"][i] = joined.Format("2006-01-02")
		cols["City"][i] = sampleCities[rng.Intn(len(sampleCities))]
		cols["PerformanceScore"][i] = RoundTo(1+4*rng.Float64(), 1)
		cols["OnLeave"][i] = rng.Intn(2) == 0
		cols["Projects"][i] = float64(1 + rng.Intn(5))
		cols["LastFeedback"][i] = sampleFeedback[rng.Intn(len(sampleFeedback))]
	}

	for k := 0; k < n/20; k++ {
		cols["PerformanceScore"][rng.Intn(n)] = nil
	}
	for k := 0; k < 10 && n > 0; k++ {
		i := rng.Intn(n)
		if rng.Intn(2) == 0 {
			cols["Projects"][i] = float64(20 + rng.Intn(11))
		} else {
			cols["Salary"][i] = RoundTo(cols["Salary"][i].(float64)*3.5, 2)
		}
	}

	series := make([]*Series, len(order))
	for i, c := range order {
		series[i] = &Series{Name: c, Values: cols[c]}
	}
	employees = &Table{Name: "employees", Source: "Employees", Columns: series}

	picked := rng.Perm(n)[:n*8/10]
	pid := make([]interface{}, len(picked))
	pname := make([]interface{}, len(picked))
	pmgr := make([]interface{}, len(picked))
	for k, i := range picked {
		pid[k] = ids[i]
		pname[k] = sampleProjects[rng.Intn(len(sampleProjects))]
		pmgr[k] = sampleManagers[rng.Intn(len(sampleManagers))]
	}
	projects = &Table{Name: "projects", Source: "Projects", Columns: []*Series{
		{Name: "EmployeeID", Values: pid},
		{Name: "ProjectName", Values: pname},
		{Name: "ProjectManager", Values: pmgr},
	}}
	return employees, projects
}

// WriteWorkbook writes tables as sheets of an xlsx workbook. Each sheet is
// named after the table's Source, or its Name when Source is empty.
func WriteWorkbook(w io.Writer, tables ...*Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := t.Source
		if sheet == "" {
			sheet = t.Name
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to name sheet %q: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
		}

		header := make([]interface{}, t.Width())
		for j, name := range t.Names() {
			header[j] = name
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write header of %q: %w", sheet, err)
		}
		for r := 0; r < t.Len(); r++ {
			row := make([]interface{}, t.Width())
			for j, c := range t.Columns {
				row[j] = c.Values[r]
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("failed to write row %d of %q: %w", r+1, sheet, err)
			}
		}
	}
	return f.Write(w)
}
