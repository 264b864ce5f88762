// Package form holds per-field form state: values, touched flags and
// validation errors, updated through Change and Blur handlers.
//
// Error text for a field is only visible once the field is touched.
// Validation is delegated to a caller-supplied [ValidateFunc] that is re-run
// on every Change and Blur.
package form
