package util

import (
	"fmt"
)

func ExampleIntSliceToCSV() {
	fmt.Println(IntSliceToCSV([]int{0, 1, 3}))
	// Output: 0,1,3
}

func ExampleClampInt() {
	fmt.Println(ClampInt(12, 0, 9), ClampInt(-3, 0, 9), ClampInt(4, 0, 9))
	// Output: 9 0 4
}

func ExampleUint16ToFITS() {
	fmt.Println(Uint16ToFITS([]uint16{0, 32768, 65535}))
	// Output: [-32768 0 32767]
}
