package storage

import (
	"sync"
	"testing"
)

func TestStudentLocksSerializeSameStudent(t *testing.T) {
	locks := newStudentLocks()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("S1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if n := locks.size(); n != 0 {
		t.Fatalf("locks not released: %d left", n)
	}
}

func TestStudentLocksIndependentStudents(t *testing.T) {
	locks := newStudentLocks()

	unlockA := locks.Lock("A")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("B")
		unlockB()
		close(done)
	}()
	<-done
	if n := locks.size(); n != 1 {
		t.Fatalf("size = %d, want 1", n)
	}
	unlockA()
	if n := locks.size(); n != 0 {
		t.Fatalf("size = %d, want 0", n)
	}
}
