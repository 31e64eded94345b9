package domain

// GeneratedForm is the nested form payload the analysis service derives from
// a detection. Only IssueType is required downstream; any remaining generated
// fields are carried opaquely.
type GeneratedForm struct {
	IssueType string         `json:"issue_type"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Detection is the immutable result of one analysis call on an image. The
// Priority field holds the service's source vocabulary ("Severe", "Moderate",
// "Safety Critical", …), not the internal scale; callers map it before
// persisting a report.
type Detection struct {
	Item        string        `json:"item"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	Type        string        `json:"type"`
	Form        GeneratedForm `json:"form"`
}
