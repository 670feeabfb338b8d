// Package openapi describes the prediction API of a loaded field schema as an
// OpenAPI 3 document and validates JSON payloads against it. kin-openapi types
// stay behind Document so handlers only see plain Go values.
package openapi
