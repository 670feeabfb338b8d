package vanilla

// ChromeClass is a typed identifier for semantic chrome CSS classes.
type ChromeClass string

const (
	ClassPage       ChromeClass = "churnform-page"
	ClassHeader     ChromeClass = "churnform-header"
	ClassForm       ChromeClass = "churnform-form"
	ClassGrid       ChromeClass = "churnform-grid"
	ClassColumn     ChromeClass = "churnform-column"
	ClassField      ChromeClass = "churnform-field"
	ClassFieldError ChromeClass = "churnform-field-error"
	ClassActions    ChromeClass = "churnform-actions"
	ClassErrors     ChromeClass = "churnform-errors"
	ClassVerdict    ChromeClass = "churnform-verdict"
	ClassMetric     ChromeClass = "churnform-metric"
	ClassDiagnostic ChromeClass = "churnform-diagnostic"
)

func chromeClasses() map[string]string {
	return map[string]string{
		"page":       string(ClassPage),
		"header":     string(ClassHeader),
		"form":       string(ClassForm),
		"grid":       string(ClassGrid),
		"column":     string(ClassColumn),
		"actions":    string(ClassActions),
		"errors":     string(ClassErrors),
		"verdict":    string(ClassVerdict),
		"metric":     string(ClassMetric),
		"diagnostic": string(ClassDiagnostic),
	}
}
