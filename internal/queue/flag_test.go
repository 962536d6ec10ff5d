package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagTransitions(t *testing.T) {
	t.Parallel()

	f := NewFlag()
	assert.Equal(t, Running, f.State())
	assert.False(t, f.Stopping())

	assert.True(t, f.Stop())
	assert.False(t, f.Stop(), "second Stop must not transition again")
	assert.Equal(t, Stopping, f.State())
	assert.True(t, f.Stopping())

	select {
	case <-f.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	f.MarkStopped()
	assert.Equal(t, Stopped, f.State())
	assert.Equal(t, "stopped", f.State().String())
}

func TestFlagMarkStoppedWithoutStop(t *testing.T) {
	t.Parallel()

	f := NewFlag()
	f.MarkStopped()
	assert.Equal(t, Stopped, f.State())
	<-f.Done()
}
