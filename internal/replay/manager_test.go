package replay

import (
	"testing"
	"time"
)

func TestManagerReselectKeepsPosition(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Deselect()

	c1 := m.Select("trace1", 10)
	c1.Seek(6)

	c2 := m.Select("trace1", 10)
	if c1 != c2 {
		t.Fatal("re-selecting the same trace should return the same controller")
	}
	if got := c2.Snapshot().CurrentSequence; got != 6 {
		t.Errorf("position lost on reselect: got %d", got)
	}
}

func TestManagerSwitchResetsController(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Deselect()

	c1 := m.Select("trace1", 10)
	c1.Seek(6)

	c2 := m.Select("trace2", 4)
	if c1 == c2 {
		t.Fatal("selecting a different trace should build a fresh controller")
	}
	st := c2.Snapshot()
	if st.CurrentSequence != 1 || st.MaxSequence != 4 || st.IsPlaying {
		t.Errorf("fresh controller not in initial state: %+v", st)
	}

	// The old controller is disposed; its operations are no-ops now.
	c1.Play()
	if c1.Snapshot().IsPlaying {
		t.Error("disposed controller still accepts commands")
	}
}

func TestManagerCurrent(t *testing.T) {
	m := NewManager(time.Hour)
	defer m.Deselect()

	if _, ok := m.Current("trace1"); ok {
		t.Error("no controller should exist before Select")
	}
	m.Select("trace1", 3)
	if _, ok := m.Current("trace1"); !ok {
		t.Error("expected the selected trace's controller")
	}
	if _, ok := m.Current("other"); ok {
		t.Error("a different trace has no controller")
	}
}

func TestManagerDeselect(t *testing.T) {
	m := NewManager(time.Hour)
	c := m.Select("trace1", 3)
	m.Deselect()

	if _, ok := m.Current("trace1"); ok {
		t.Error("deselect should drop the controller")
	}
	c.Play()
	if c.Snapshot().IsPlaying {
		t.Error("deselected controller still accepts commands")
	}
}
