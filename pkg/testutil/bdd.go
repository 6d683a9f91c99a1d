package testutil

import "testing"

// Scenario steps run as named subtests so failures read as a narrative.

func Given(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "Given", desc, fn) }

func When(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "When", desc, fn) }

func Then(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "Then", desc, fn) }

func And(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "And", desc, fn) }

// step stops the enclosing scenario when a prerequisite step fails.
func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(keyword+" "+desc, fn) && keyword != "Then" && keyword != "And" {
		t.FailNow()
	}
}
