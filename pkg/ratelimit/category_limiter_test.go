package ratelimit

import (
	"testing"
	"time"
)

func TestCategoryLimiterAdmitsExactlyMax(t *testing.T) {
	l := NewCategoryLimiter(map[Category]int{CategoryChat: 5, CategoryGeneral: 30})

	admitted := 0
	for i := 0; i < 8; i++ {
		if l.Allow(CategoryChat) {
			admitted++
		}
	}
	if admitted != 5 {
		t.Fatalf("expected exactly 5 admitted within the window, got %d", admitted)
	}

	// 6th+ attempts rejected until the window rolls.
	if l.Allow(CategoryChat) {
		t.Fatalf("expected rejection once the window is saturated")
	}
}

func TestCategoryLimiterWindowRolls(t *testing.T) {
	l := NewCategoryLimiter(map[Category]int{CategoryChat: 2, CategoryGeneral: 30})
	l.window = 30 * time.Millisecond

	if !l.Allow(CategoryChat) || !l.Allow(CategoryChat) {
		t.Fatalf("expected first two events admitted")
	}
	if l.Allow(CategoryChat) {
		t.Fatalf("expected third event rejected within the same window")
	}

	time.Sleep(40 * time.Millisecond)
	if !l.Allow(CategoryChat) {
		t.Fatalf("expected the window to roll and admit a new event")
	}
}

func TestCategoryLimiterFallsBackToGeneral(t *testing.T) {
	l := NewCategoryLimiter(map[Category]int{CategoryGeneral: 1})
	if !l.Allow(Category("unmapped")) {
		t.Fatalf("expected first event on an unmapped category to fall back to general and be admitted")
	}
	if l.Allow(Category("unmapped")) {
		t.Fatalf("expected second event to be rejected under the general cap")
	}
}
