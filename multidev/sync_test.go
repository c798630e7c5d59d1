package multidev

import "testing"

func TestLeaseExclusivity(t *testing.T) {
	s := New(2)
	if _, err := s.Lease(2); err == nil {
		t.Fatalf("Lease(2) on a 2-device synchroniser should fail")
	}
	dev0, err := s.Lease(0)
	if err != nil {
		t.Fatalf("Lease(0) error = %v", err)
	}
	if _, err := s.Lease(0); err == nil {
		t.Fatalf("second Lease(0) should fail while the first is held")
	}
	dev0.Close()
	dev0b, err := s.Lease(0)
	if err != nil {
		t.Fatalf("Lease(0) after Close() error = %v", err)
	}
	dev0b.Close()
}

// TestSingleDevice covers spec.md §8 scenario S6 (single-device case).
func TestSingleDevice(t *testing.T) {
	s := New(1)
	dev0, err := s.Lease(0)
	if err != nil {
		t.Fatalf("Lease(0) error = %v", err)
	}
	defer dev0.Close()
	for i := 0; i < 100; i++ {
		if got := dev0.TryStep(); got != Proceed {
			t.Fatalf("TryStep() #%d = %v, want Proceed", i, got)
		}
	}
}

// TestTwoDevices covers spec.md §8 scenario S6.
func TestTwoDevices(t *testing.T) {
	s := New(2)
	dev0, err := s.Lease(0)
	if err != nil {
		t.Fatalf("Lease(0) error = %v", err)
	}
	defer dev0.Close()

	if got := dev0.TryStep(); got != Proceed {
		t.Fatalf("dev0.TryStep() = %v, want Proceed", got)
	}
	for i := 0; i < 30; i++ {
		if got := dev0.TryStep(); got != Skip {
			t.Fatalf("dev0.TryStep() #%d = %v, want Skip", i, got)
		}
	}

	dev1, err := s.Lease(1)
	if err != nil {
		t.Fatalf("Lease(1) error = %v", err)
	}
	defer dev1.Close()
	if got := dev1.TryStep(); got != Proceed {
		t.Fatalf("dev1.TryStep() = %v, want Proceed", got)
	}

	for i := 0; i < 100; i++ {
		if got := dev0.TryStep(); got != Proceed {
			t.Fatalf("dev0.TryStep() alternating #%d = %v, want Proceed", i, got)
		}
		if got := dev1.TryStep(); got != Proceed {
			t.Fatalf("dev1.TryStep() alternating #%d = %v, want Proceed", i, got)
		}
	}
}

// TestThreeDevicesFairness covers spec.md §8 property 5.
func TestThreeDevicesFairness(t *testing.T) {
	s := New(3)
	devs := make([]*DeviceSynchroniser, 3)
	for i := range devs {
		dev, err := s.Lease(i)
		if err != nil {
			t.Fatalf("Lease(%d) error = %v", i, err)
		}
		defer dev.Close()
		devs[i] = dev
	}
	orders := [][]int{{2, 1, 0}, {1, 2, 0}, {0, 2, 1}}
	for _, order := range orders {
		for i := 0; i < 30; i++ {
			for _, d := range order {
				if got := devs[d].TryStep(); got != Proceed {
					t.Fatalf("dev%d.TryStep() = %v, want Proceed", d, got)
				}
			}
		}
	}
}
