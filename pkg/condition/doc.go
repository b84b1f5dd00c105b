// Package condition is the pluggable pre/post test condition framework.
//
// A Condition captures or verifies some piece of Asterisk state before and
// after a test scenario runs. Conditions are created from Config values by
// a Registry and driven by a Controller, which evaluates them one at a time,
// notifies observers of each verdict and stops the test on failure.
//
// Concrete conditions live in the checks package; they embed *Base, which
// owns the status, the failure reasons and the registered instances.
package condition
