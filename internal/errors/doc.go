// Package errors provides coded, actionable errors for turbo.
//
// Every error carries a code that maps to a registered template:
//   - T001-T099: configuration (bad files, invalid values)
//   - T100-T199: runtime (binding and cache failures)
//   - T200-T299: transport (origins, the environment bridge, the server)
//
// # Usage
//
//	err := errors.New("T003").
//	    WithSource("turbo.yaml: focusInterval").
//	    WithSuggestion(`Use a Go duration such as "5s"`)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR T003: Invalid duration
//	//
//	//   turbo.yaml: focusInterval
//	//
//	//   Hint: Use a Go duration such as "5s"
package errors
