// Package exitcodes defines the standard exit codes used by sentinel-keeper.
package exitcodes

// Exit code constants used by sentinel-keeper
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when the run completed and every merged result passed
// * TestFailure (1): Used when one or more test cases failed
// * RuntimeErr (2): Used for runtime errors such as panics, timeouts or other failures
const (
	Success     = 0 // All test cases pass
	TestFailure = 1 // Test case failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
