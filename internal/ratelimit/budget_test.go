package ratelimit_test

import (
	"testing"

	"talentline/internal/ratelimit"
)

func TestBudgetIsPerRole(t *testing.T) {
	b := ratelimit.NewBudget(2, 1)
	for i := 0; i < 2; i++ {
		if !b.AllowSend("role-1") {
			t.Fatalf("send %d denied under budget", i)
		}
	}
	if b.AllowSend("role-1") {
		t.Fatal("send over budget allowed")
	}
	if !b.AllowSend("role-2") {
		t.Fatal("other role shares the ceiling")
	}
	if !b.AllowSource("role-1") || b.AllowSource("role-1") {
		t.Fatal("sourcing budget not enforced")
	}
}
