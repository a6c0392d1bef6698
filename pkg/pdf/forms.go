package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Data is the flat bundle a form generator renders from. The workflow core
// assembles it from the application, session and form response rows; layout
// stays entirely in this package.
type Data struct {
	Fields map[string]string
}

// Get returns a field value, empty when absent.
func (d Data) Get(key string) string {
	if d.Fields == nil {
		return ""
	}
	return d.Fields[key]
}

// Generator renders one official form type.
type Generator struct {
	code     string
	title    string
	required []string
	rows     []row
}

type row struct {
	label string
	key   string
}

// Code returns the form code this generator serves.
func (g *Generator) Code() string { return g.code }

// Validate fails when a required field is missing from the bundle.
func (g *Generator) Validate(data Data) error {
	missing := make([]string, 0)
	for _, key := range g.required {
		if strings.TrimSpace(data.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("form %s: missing required fields: %s", g.code, strings.Join(missing, ", "))
	}
	return nil
}

// Generate renders the form into PDF bytes. Callers must Validate first;
// Generate revalidates to keep the contract self-contained.
func (g *Generator) Generate(data Data) ([]byte, error) {
	if err := g.Validate(data); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, "JABATAN LATIHAN INDUSTRI", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s - %s", g.code, strings.ToUpper(g.title)), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	for _, r := range g.rows {
		value := data.Get(r.key)
		if value == "" {
			value = "-"
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 7, r.label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 7, value, "", "", false)
	}

	renderSignatureBlock(pdf, data)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", g.code, err)
	}
	return buf.Bytes(), nil
}

func renderSignatureBlock(pdf *gofpdf.Fpdf, data Data) {
	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 7, "SIGNATURES", "T", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)

	for _, sig := range []struct{ label, nameKey, dateKey string }{
		{"Student", "studentName", "studentSignedAt"},
		{"Industrial Supervisor", "supervisorName", "supervisorSignedAt"},
		{"Coordinator", "coordinatorName", "coordinatorSignedAt"},
	} {
		name := data.Get(sig.nameKey)
		signedAt := data.Get(sig.dateKey)
		if name == "" {
			continue
		}
		line := name
		if signedAt != "" {
			line = fmt.Sprintf("%s (signed %s)", name, signedAt)
		}
		pdf.CellFormat(50, 6, sig.label+":", "", 0, "", false, 0, "")
		pdf.CellFormat(0, 6, line, "", 1, "", false, 0, "")
	}
}

// Registry maps form codes to generators for the fixed form set.
type Registry map[string]*Generator

// NewRegistry builds generators for every system-generated form.
func NewRegistry() Registry {
	return Registry{
		"BLI-01": {
			code:     "BLI-01",
			title:    "Application for Industrial Training",
			required: []string{"studentName", "matricNo", "sessionName"},
			rows: []row{
				{"Student Name", "studentName"},
				{"Matric No", "matricNo"},
				{"Training Session", "sessionName"},
				{"Organization", "orgName"},
				{"Address", "orgAddress"},
			},
		},
		"BLI-03": {
			code:     "BLI-03",
			title:    "Placement Confirmation",
			required: []string{"studentName", "orgName", "supervisorName", "reportingDate"},
			rows: []row{
				{"Student Name", "studentName"},
				{"Organization", "orgName"},
				{"Address", "orgAddress"},
				{"Supervisor", "supervisorName"},
				{"Supervisor Email", "supervisorEmail"},
				{"Reporting Date", "reportingDate"},
				{"Training Unit", "trainingUnit"},
			},
		},
		"SLI-03": {
			code:     "SLI-03",
			title:    "Reporting-for-Duty Slip",
			required: []string{"studentName", "orgName", "reportingDate"},
			rows: []row{
				{"Student Name", "studentName"},
				{"Matric No", "matricNo"},
				{"Organization", "orgName"},
				{"Reporting Date", "reportingDate"},
			},
		},
		"DLI-01": {
			code:     "DLI-01",
			title:    "Training Commencement Letter",
			required: []string{"studentName", "orgName", "sessionName"},
			rows: []row{
				{"Student Name", "studentName"},
				{"Organization", "orgName"},
				{"Training Session", "sessionName"},
				{"Supervisor", "supervisorName"},
			},
		},
		"BLI-04": {
			code:     "BLI-04",
			title:    "Completion Report",
			required: []string{"studentName", "orgName", "completionDate"},
			rows: []row{
				{"Student Name", "studentName"},
				{"Organization", "orgName"},
				{"Completion Date", "completionDate"},
				{"Attendance (days)", "attendanceDays"},
				{"Task Summary", "taskSummary"},
			},
		},
	}
}
