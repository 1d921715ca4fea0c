package event

import "testing"

func TestAddFiresInOrder(t *testing.T) {
	var q Queue
	var order []int
	q.Add(nil, 1, 10, func(tag int) { order = append(order, tag) })
	q.Add(nil, 2, 5, func(tag int) { order = append(order, tag) })
	q.Add(nil, 3, 20, func(tag int) { order = append(order, tag) })

	q.Advance(5)
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("got %v after first advance", order)
	}
	q.Advance(5)
	if len(order) != 2 || order[1] != 1 {
		t.Fatalf("got %v after second advance", order)
	}
	q.Advance(10)
	if len(order) != 3 || order[2] != 3 {
		t.Fatalf("got %v after third advance", order)
	}
	if q.Pending() {
		t.Fatalf("expected queue drained")
	}
}

func TestZeroDelayRunsImmediately(t *testing.T) {
	var q Queue
	ran := false
	q.Add(nil, 1, 0, func(int) { ran = true })
	if !ran {
		t.Fatalf("expected immediate callback")
	}
	if q.Pending() {
		t.Fatalf("zero-delay event should not be queued")
	}
}

func TestCancelRemovesPendingEvent(t *testing.T) {
	var q Queue
	fired := false
	dev := "unit0"
	q.Add(dev, 7, 10, func(int) { fired = true })
	q.Cancel(dev, 7)
	q.Advance(10)
	if fired {
		t.Fatalf("expected cancelled event not to fire")
	}
}

func TestCancelFoldsRemainingTimeIntoNext(t *testing.T) {
	var q Queue
	var order []int
	q.Add(nil, 1, 5, func(tag int) { order = append(order, tag) })
	q.Add(nil, 2, 10, func(tag int) { order = append(order, tag) })
	q.Cancel(nil, 1)
	q.Advance(10)
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("got %v", order)
	}
}
