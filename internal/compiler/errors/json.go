package errors

import (
	"encoding/json"
)

// JSONOutput is the document printed by the CLI in --json mode
type JSONOutput struct {
	Status   string    `json:"status"`
	Errors   ErrorList `json:"errors"`
	Warnings ErrorList `json:"warnings"`
	Summary  Summary   `json:"summary"`
}

// Summary contains error and warning counts
type Summary struct {
	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`
	TotalCount   int `json:"total_count"`
}

// NewJSONOutput separates errors and warnings and derives the overall status
func NewJSONOutput(list ErrorList) JSONOutput {
	errorList := ErrorList{}
	warningList := ErrorList{}

	for _, err := range list {
		if err.Severity == SeverityWarning {
			warningList = append(warningList, err)
		} else {
			errorList = append(errorList, err)
		}
	}

	status := "success"
	if len(errorList) > 0 {
		status = "error"
	} else if len(warningList) > 0 {
		status = "warning"
	}

	return JSONOutput{
		Status:   status,
		Errors:   errorList,
		Warnings: warningList,
		Summary: Summary{
			ErrorCount:   len(errorList),
			WarningCount: len(warningList),
			TotalCount:   len(list),
		},
	}
}

// FormatErrorsAsJSON formats multiple diagnostics as indented JSON
func FormatErrorsAsJSON(list ErrorList) (string, error) {
	data, err := json.MarshalIndent(NewJSONOutput(list), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
