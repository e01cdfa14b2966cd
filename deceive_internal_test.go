package mkimg

import "testing"

func TestShrunkLength(t *testing.T) {
	content := make([]byte, 1024*1024)
	if got, want := shrunkLength(content), int64(minShrunkSize); got != want {
		t.Errorf("shrunkLength(zeros) = %d, want %d", got, want)
	}
	if got, want := shrunkLength(content[:1024]), int64(minShrunkSize); got != want {
		t.Errorf("shrunkLength(short) = %d, want %d", got, want)
	}
	content[minShrunkSize+511] = 1
	if got, want := shrunkLength(content), int64(minShrunkSize+512); got != want {
		t.Errorf("shrunkLength = %d, want %d", got, want)
	}
}
