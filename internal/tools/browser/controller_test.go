package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoUIdenticalBoxesIsOne(t *testing.T) {
	a := InteractiveElement{X: 0, Y: 0, Width: 10, Height: 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-9)
}

func TestIoUNonOverlappingIsZero(t *testing.T) {
	a := InteractiveElement{X: 0, Y: 0, Width: 10, Height: 10}
	b := InteractiveElement{X: 100, Y: 100, Width: 10, Height: 10}
	assert.Equal(t, 0.0, iou(a, b))
}

func TestOverlapsExistingDedupesNearIdenticalBoxes(t *testing.T) {
	existing := []InteractiveElement{{Index: 0, Tag: "button", X: 10, Y: 10, Width: 50, Height: 20}}
	near := InteractiveElement{Tag: "button", X: 11, Y: 10, Width: 50, Height: 20}
	assert.True(t, overlapsExisting(existing, near))

	far := InteractiveElement{Tag: "button", X: 500, Y: 500, Width: 50, Height: 20}
	assert.False(t, overlapsExisting(existing, far))
}
