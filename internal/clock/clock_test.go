package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestFakeScheduler_FiresAtDeadline(t *testing.T) {
	s := NewFakeScheduler(epoch)
	fired := 0
	s.AfterFunc(400*time.Millisecond, func() { fired++ })

	s.Advance(399 * time.Millisecond)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, s.Pending())

	s.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, s.Pending())

	s.Advance(time.Hour)
	assert.Equal(t, 1, fired, "timers fire once")
}

func TestFakeScheduler_Stop(t *testing.T) {
	s := NewFakeScheduler(epoch)
	fired := false
	timer := s.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	s.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeScheduler_Order(t *testing.T) {
	s := NewFakeScheduler(epoch)
	var got []string
	s.AfterFunc(3*time.Second, func() { got = append(got, "c") })
	s.AfterFunc(time.Second, func() { got = append(got, "a") })
	s.AfterFunc(time.Second, func() { got = append(got, "b") })

	s.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.True(t, s.Now().Equal(epoch.Add(5*time.Second)))
}

func TestFakeScheduler_ScheduleFromCallback(t *testing.T) {
	s := NewFakeScheduler(epoch)
	fired := 0
	s.AfterFunc(time.Second, func() {
		fired++
		s.AfterFunc(time.Second, func() { fired++ })
	})

	s.Advance(time.Second)
	assert.Equal(t, 1, fired)
	s.Advance(time.Second)
	assert.Equal(t, 2, fired)
}

func TestRealScheduler(t *testing.T) {
	done := make(chan struct{})
	RealScheduler{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
