/*
 * mcore370 - Discrete event scheduler.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package event implements a relative-time discrete event queue used by
// the interval timer and channel completion callbacks. Unlike the
// teacher's package-level queue, the list lives in a Queue value owned by
// the caller (no package globals, per the "global mutable state" redesign
// note) so multiple CPU instances never share timers.
package event

// Callback runs when an event's relative time expires. tag identifies
// the event to the owner (e.g. a device index or channel number).
type Callback func(tag int)

type entry struct {
	time int // cycles remaining relative to the previous entry
	tag  int
	owner any
	cb    Callback
	prev  *entry
	next  *entry
}

// Queue is a doubly-linked, relative-time-delta event list: each entry's
// time field holds the number of cycles after the previous entry fires,
// so Advance only ever adjusts the head.
type Queue struct {
	head *entry
	tail *entry
}

// Add schedules cb to run after the given number of cycles. owner
// together with tag identifies the event for Cancel; owner is typically
// the device or unit that registered it. A zero delay runs cb
// immediately and schedules nothing.
func (q *Queue) Add(owner any, tag int, delay int, cb Callback) {
	if delay <= 0 {
		cb(tag)
		return
	}
	ev := &entry{time: delay, tag: tag, owner: owner, cb: cb}

	cur := q.head
	if cur == nil {
		q.head = ev
		q.tail = ev
		return
	}
	for cur != nil {
		if ev.time <= cur.time {
			cur.time -= ev.time
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				q.head = ev
			}
			return
		}
		ev.time -= cur.time
		cur = cur.next
	}
	ev.prev = q.tail
	q.tail.next = ev
	q.tail = ev
}

// Cancel removes the first pending event matching owner and tag, folding
// its remaining time into the following entry so relative deltas stay
// consistent.
func (q *Queue) Cancel(owner any, tag int) {
	for cur := q.head; cur != nil; cur = cur.next {
		if cur.owner != owner || cur.tag != tag {
			continue
		}
		if cur.next != nil {
			cur.next.time += cur.time
			cur.next.prev = cur.prev
		} else {
			q.tail = cur.prev
		}
		if cur.prev != nil {
			cur.prev.next = cur.next
		} else {
			q.head = cur.next
		}
		return
	}
}

// Pending reports whether any event is scheduled.
func (q *Queue) Pending() bool {
	return q.head != nil
}

// Advance moves the clock forward by cycles cycles, firing every event
// whose relative time has expired in scheduled order. A callback that
// reschedules itself via Add is run on the next Advance, not reentrantly.
func (q *Queue) Advance(cycles int) {
	if q.head == nil {
		return
	}
	q.head.time -= cycles
	for q.head != nil && q.head.time <= 0 {
		due := q.head
		q.head = due.next
		if q.head != nil {
			q.head.prev = nil
			q.head.time += due.time // carry any overshoot into the next delta
		} else {
			q.tail = nil
		}
		due.cb(due.tag)
	}
}
