package graph

import "github.com/ravi-parthasarathy/pipecanvas/pkg/definition"

// Deterministic container layout, in canvas units.
const (
	ContainerPadding  = 20.0
	OperatorWidth     = 200.0
	OperatorHeight    = 60.0
	OperatorGap       = 40.0
	HeaderAllowance   = 40.0
	MinContainerWidth = 260.0
)

// ContainerSize returns the size of a container holding n operators laid out
// in one row. The width never drops below MinContainerWidth.
func ContainerSize(n int) Size {
	w := 2 * ContainerPadding
	if n > 0 {
		w += float64(n)*OperatorWidth + float64(n-1)*OperatorGap
	}
	if w < MinContainerWidth {
		w = MinContainerWidth
	}
	return Size{
		Width:  w,
		Height: 2*ContainerPadding + OperatorHeight + HeaderAllowance,
	}
}

// OperatorSlot returns the position, relative to its container, of the
// operator at index i.
func OperatorSlot(i int) definition.Position {
	return definition.Position{
		X: ContainerPadding + float64(i)*(OperatorWidth+OperatorGap),
		Y: ContainerPadding + HeaderAllowance,
	}
}
