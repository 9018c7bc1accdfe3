package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	samples := []Buttons{
		{AutoTest: true},
		{},
		{Stop: true, Experiment: true},
	}
	f := NewFakeReader(samples)

	for i, want := range samples {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %+v, got %+v", i, want, got)
		}
	}

	// Exhausted samples repeat the last one
	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != samples[2] {
		t.Errorf("repeat: expected %+v, got %+v", samples[2], got)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Buttons{{Stop: true}})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]Buttons{{AutoTest: true}, {}})

	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}

	f.Read()
	f.Reset()
	if f.Closed() {
		t.Error("Reset should clear closed")
	}
	got, _ := f.Read()
	if !got.AutoTest {
		t.Errorf("after reset: expected first sample, got %+v", got)
	}
}
