package health

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Result is the normalized output of a single probe invocation.
type Result struct {
	Name    string
	Up      bool
	Elapsed time.Duration

	StatusCode           *int
	ErrorMessage         string
	ErrorResponseContent any

	// IP is the remote endpoint address observed during the check.
	IP  string
	URL string

	Response any
	Errors   []ErrorDetail
}

// ErrorDetail is one entry of Result.Errors. Context keys are flattened next
// to "message" on the wire.
type ErrorDetail struct {
	Message string
	Context map[string]any
}

type resultJSON struct {
	Name                 string        `json:"name"`
	Up                   bool          `json:"up"`
	ElapsedTime          float64       `json:"elapsedTime"`
	StatusCode           *int          `json:"statusCode,omitempty"`
	ErrorMessage         string        `json:"errorMessage,omitempty"`
	ErrorResponseContent any           `json:"errorResponseContent,omitempty"`
	IP                   string        `json:"ip,omitempty"`
	URL                  string        `json:"url,omitempty"`
	Response             any           `json:"response,omitempty"`
	Errors               []ErrorDetail `json:"errors,omitempty"`
}

// Milliseconds renders d as fractional milliseconds rounded to microseconds.
func Milliseconds(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Microsecond)) / 1000
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Name:                 r.Name,
		Up:                   r.Up,
		ElapsedTime:          Milliseconds(r.Elapsed),
		StatusCode:           r.StatusCode,
		ErrorMessage:         r.ErrorMessage,
		ErrorResponseContent: r.ErrorResponseContent,
		IP:                   r.IP,
		URL:                  r.URL,
		Response:             r.Response,
		Errors:               r.Errors,
	})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var w resultJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Result{
		Name:                 w.Name,
		Up:                   w.Up,
		Elapsed:              time.Duration(w.ElapsedTime * float64(time.Millisecond)),
		StatusCode:           w.StatusCode,
		ErrorMessage:         w.ErrorMessage,
		ErrorResponseContent: w.ErrorResponseContent,
		IP:                   w.IP,
		URL:                  w.URL,
		Response:             w.Response,
		Errors:               w.Errors,
	}
	return nil
}

func (d ErrorDetail) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Context)+1)
	for k, v := range d.Context {
		m[k] = v
	}
	m["message"] = d.Message
	return json.Marshal(m)
}

func (d *ErrorDetail) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	msg, _ := m["message"].(string)
	delete(m, "message")
	if len(m) == 0 {
		m = nil
	}
	*d = ErrorDetail{Message: msg, Context: m}
	return nil
}

// AddError appends a detail and marks the result down.
func (r *Result) AddError(d ErrorDetail) {
	r.Up = false
	r.Errors = append(r.Errors, d)
}

// Fail marks the result down and records the classified failure.
func (r *Result) Fail(err error) {
	r.Up = false
	if err == nil {
		if !r.hasFailureField() {
			r.ErrorMessage = "unknown failure"
		}
		return
	}
	f := Classify(err)
	if f.StatusCode != nil {
		r.StatusCode = f.StatusCode
	}
	r.ErrorMessage = f.Message
	if f.Content != nil {
		r.ErrorResponseContent = f.Content
	}
}

// SetStatus records a transport status observed on a successful call.
func (r *Result) SetStatus(code int) {
	r.StatusCode = &code
}

func (r *Result) hasFailureField() bool {
	return r.StatusCode != nil || r.ErrorMessage != "" || r.ErrorResponseContent != nil || len(r.Errors) > 0
}

// Valid reports whether the result is either up with no error fields, or down
// with at least one status or error field populated.
func (r Result) Valid() bool {
	if r.Elapsed < 0 {
		return false
	}
	if r.Up {
		return r.ErrorMessage == "" && r.ErrorResponseContent == nil && len(r.Errors) == 0
	}
	return r.hasFailureField()
}

// Report is the envelope for one complete run of the battery.
type Report struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"-"`
	Up        bool          `json:"up"`
	Results   []Result      `json:"results"`
}

type reportJSON struct {
	ID          uuid.UUID `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	ElapsedTime float64   `json:"elapsedTime"`
	Up          bool      `json:"up"`
	Results     []Result  `json:"results"`
}

// NewReport builds a report with a fresh run ID. Up is true only when every
// result is up.
func NewReport(startedAt time.Time, elapsed time.Duration, results []Result) Report {
	up := true
	for _, r := range results {
		if !r.Up {
			up = false
			break
		}
	}
	if results == nil {
		results = []Result{}
	}
	return Report{
		ID:        uuid.New(),
		StartedAt: startedAt.UTC(),
		Elapsed:   elapsed,
		Up:        up,
		Results:   results,
	}
}

// Down returns the names of the failing probes in report order.
func (rep Report) Down() []string {
	var out []string
	for _, r := range rep.Results {
		if !r.Up {
			out = append(out, r.Name)
		}
	}
	return out
}

func (rep Report) MarshalJSON() ([]byte, error) {
	results := rep.Results
	if results == nil {
		results = []Result{}
	}
	return json.Marshal(reportJSON{
		ID:          rep.ID,
		StartedAt:   rep.StartedAt,
		ElapsedTime: Milliseconds(rep.Elapsed),
		Up:          rep.Up,
		Results:     results,
	})
}

func (rep *Report) UnmarshalJSON(b []byte) error {
	var w reportJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*rep = Report{
		ID:        w.ID,
		StartedAt: w.StartedAt,
		Elapsed:   time.Duration(w.ElapsedTime * float64(time.Millisecond)),
		Up:        w.Up,
		Results:   w.Results,
	}
	return nil
}
