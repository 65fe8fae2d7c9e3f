//go:build !dmx820 || !cgo

package dmx820

type hardware struct{}

// Hardware returns the driver backed by the vendor library.  This build does
// not link it, so every call fails with ErrNoDriver
func Hardware() Driver {
	return hardware{}
}

func (hardware) Boards() ([]BoardInfo, error) {
	return nil, ErrNoDriver
}

func (hardware) Open(index int) (Board, error) {
	return nil, ErrNoDriver
}
