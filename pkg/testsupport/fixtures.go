// Package testsupport holds fixtures shared by the package tests and the
// examples: the Netflix artifacts under examples/netflix and a pair of sample
// customers on either side of the decision threshold.
package testsupport

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/schema"
)

// Root returns the module root, located from this file so tests can reach the
// fixtures from any package directory.
func Root() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

// Path joins elem onto Root.
func Path(elem ...string) string {
	return filepath.Join(append([]string{Root()}, elem...)...)
}

// NetflixModelPath is the logistic model fixture.
func NetflixModelPath() string {
	return Path("examples", "netflix", "model.json")
}

// NetflixSchemaPath is the columns.json fixture the model was built against.
func NetflixSchemaPath() string {
	return Path("examples", "netflix", "columns.json")
}

// NetflixLoader returns a loader over the Netflix fixtures. opts are applied
// after the paths.
func NetflixLoader(opts ...resources.Option) *resources.Loader {
	base := []resources.Option{
		resources.WithModelPath(NetflixModelPath()),
		resources.WithSchemaPath(NetflixSchemaPath()),
	}
	return resources.NewLoader(append(base, opts...)...)
}

// MustLoadSchema loads a schema file or fails the test.
func MustLoadSchema(t *testing.T, path string, opts ...schema.Option) *schema.Schema {
	t.Helper()

	s, err := LoadSchema(path, opts...)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return s
}

// LoadSchema loads a schema file without requiring testing.T.
func LoadSchema(path string, opts ...schema.Option) (*schema.Schema, error) {
	if path == "" {
		return nil, errors.New("testsupport: schema path is required")
	}
	s, err := schema.LoadFile(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("testsupport: %w", err)
	}
	return s, nil
}

// DisengagedCustomer scores well above the fixture model's threshold.
func DisengagedCustomer() map[string]any {
	return map[string]any{
		"subscription_type":      "Basic",
		"region":                 "Europe",
		"device":                 "Mobile",
		"payment_method":         "Crypto",
		"gender":                 "Female",
		"favorite_genre":         "Drama",
		"age":                    30.0,
		"watch_hours":            0.5,
		"last_login_days":        60.0,
		"monthly_fee":            8.99,
		"number_of_profiles":     1.0,
		"avg_watch_time_per_day": 0.1,
	}
}

// LoyalCustomer scores well below the fixture model's threshold.
func LoyalCustomer() map[string]any {
	values := DisengagedCustomer()
	values["subscription_type"] = "Premium"
	values["payment_method"] = "Credit Card"
	values["watch_hours"] = 40.0
	values["last_login_days"] = 1.0
	values["number_of_profiles"] = 5.0
	values["avg_watch_time_per_day"] = 5.0
	return values
}

// FormValues renders customer values the way a browser would submit them.
func FormValues(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for name, value := range values {
		out[name] = fmt.Sprint(value)
	}
	return out
}
