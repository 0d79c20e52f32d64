package tap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Phase is the UWS execution phase of a job. Phases the client does not
// know are kept verbatim and treated as non-terminal.
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseQueued    Phase = "QUEUED"
	PhaseExecuting Phase = "EXECUTING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseError     Phase = "ERROR"
	PhaseAborted   Phase = "ABORTED"
)

// ParsePhase normalizes a phase string.
func ParsePhase(value string) Phase {
	return Phase(strings.ToUpper(strings.TrimSpace(value)))
}

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseError, PhaseAborted:
		return true
	}
	return false
}

// Running reports whether the job is queued or executing.
func (p Phase) Running() bool {
	return p == PhaseQueued || p == PhaseExecuting
}

func (p Phase) String() string { return string(p) }

const noErrorMessage = "no error message found"

// Parameter is one id/value pair from the job's parameter list.
type Parameter struct {
	ID    string `json:"id" yaml:"id"`
	Value string `json:"value" yaml:"value"`
}

// StatusDocument is the parsed content of one job status response. It is a
// plain value; every refresh produces a new one.
type StatusDocument struct {
	JobID             string
	RunID             string
	OwnerID           string
	ProcessID         string
	Phase             Phase
	Quote             string
	StartTime         string
	EndTime           string
	ExecutionDuration string
	Destruction       string
	ResultURL         string
	ErrorMessage      string
	Parameters        []Parameter
	RawParameters     string
}

type uwsJob struct {
	XMLName           xml.Name
	JobID             string         `xml:"jobId"`
	RunID             string         `xml:"runId"`
	OwnerID           string         `xml:"ownerId"`
	ProcessID         string         `xml:"processId"`
	Phase             string         `xml:"phase"`
	Quote             string         `xml:"quote"`
	StartTime         string         `xml:"startTime"`
	EndTime           string         `xml:"endTime"`
	ExecutionDuration string         `xml:"executionDuration"`
	Destruction       string         `xml:"destruction"`
	Parameters        *uwsParameters `xml:"parameters"`
	Results           []uwsResult    `xml:"results>result"`
	ErrorSummary      *struct {
		Message string `xml:"message"`
	} `xml:"errorSummary"`
}

type uwsParameters struct {
	Raw    string `xml:",innerxml"`
	Params []struct {
		ID    string `xml:"id,attr"`
		Value string `xml:",chardata"`
	} `xml:"parameter"`
}

type uwsResult struct {
	ID    string     `xml:"id,attr"`
	Attrs []xml.Attr `xml:",any,attr"`
}

func (r uwsResult) href() string {
	for _, attr := range r.Attrs {
		if attr.Name.Local == "href" {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

// ParseStatusDocument parses a UWS job document. A VOTABLE error envelope
// in place of the job document yields an ERROR phase carrying its message.
func ParseStatusDocument(body []byte) (StatusDocument, error) {
	if msg, ok := VOTableError(bytes.NewReader(body)); ok {
		if msg == "" {
			msg = noErrorMessage
		}
		return StatusDocument{Phase: PhaseError, ErrorMessage: msg}, nil
	}

	var job uwsJob
	if err := xml.Unmarshal(body, &job); err != nil {
		return StatusDocument{}, fmt.Errorf("decode job document: %w", err)
	}
	if job.XMLName.Local != "job" {
		return StatusDocument{}, fmt.Errorf("root element %q is not a UWS job", job.XMLName.Local)
	}
	phase := ParsePhase(job.Phase)
	if phase == "" {
		return StatusDocument{}, fmt.Errorf("job document has no phase")
	}

	doc := StatusDocument{
		JobID:             strings.TrimSpace(job.JobID),
		RunID:             strings.TrimSpace(job.RunID),
		OwnerID:           strings.TrimSpace(job.OwnerID),
		ProcessID:         strings.TrimSpace(job.ProcessID),
		Phase:             phase,
		Quote:             strings.TrimSpace(job.Quote),
		StartTime:         strings.TrimSpace(job.StartTime),
		EndTime:           strings.TrimSpace(job.EndTime),
		ExecutionDuration: strings.TrimSpace(job.ExecutionDuration),
		Destruction:       strings.TrimSpace(job.Destruction),
	}
	if job.Parameters != nil {
		doc.RawParameters = strings.TrimSpace(job.Parameters.Raw)
		for _, p := range job.Parameters.Params {
			doc.Parameters = append(doc.Parameters, Parameter{ID: p.ID, Value: strings.TrimSpace(p.Value)})
		}
	}
	doc.ResultURL = pickResult(job.Results)
	if job.ErrorSummary != nil {
		doc.ErrorMessage = strings.TrimSpace(job.ErrorSummary.Message)
	}

	switch phase {
	case PhaseCompleted:
		if doc.ResultURL == "" {
			return StatusDocument{}, fmt.Errorf("job %s is COMPLETED but has no result reference", doc.JobID)
		}
	case PhaseError:
		if doc.ErrorMessage == "" {
			doc.ErrorMessage = noErrorMessage
		}
	}
	return doc, nil
}

// pickResult prefers the result named "result", falling back to the first
// result that carries a reference.
func pickResult(results []uwsResult) string {
	first := ""
	for _, r := range results {
		href := r.href()
		if href == "" {
			continue
		}
		if r.ID == "result" {
			return href
		}
		if first == "" {
			first = href
		}
	}
	return first
}
