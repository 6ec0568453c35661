package pinto

import "fmt"

// CodingUnit is the quantized content of one 8x8 data unit.
type CodingUnit struct {
	MCU       int // Raster MCU index
	Component int // Index into the scan's component list
	Block     int // Block index within the MCU for this component, raster order

	// Coef holds the quantized coefficients in zig-zag order. Coef[0] is
	// the absolute DC value, not the coded difference.
	Coef [blockSize]int32
}

// IsZero reports whether every coefficient of the unit is zero.
func (u *CodingUnit) IsZero() bool {
	for _, c := range u.Coef {
		if c != 0 {
			return false
		}
	}
	return true
}

// DecodeCoefficients decodes every data unit of the scan in scan order.
// A payload that ends early yields the units decoded so far.
func (f *Frame) DecodeCoefficients() ([]CodingUnit, error) {
	total := 0
	for _, ci := range f.Scan {
		total += f.BlocksPerMCU(ci)
	}
	units := make([]CodingUnit, 0, total*f.MCUCount())

	err := f.walkScan(func(u *dataUnit) error {
		units = append(units, CodingUnit{
			MCU:       u.MCU,
			Component: u.Component,
			Block:     u.Block,
			Coef:      u.coefficients(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode coefficients: %w", err)
	}
	return units, nil
}

// DecodeCoefficients parses data and decodes its coefficients.
func DecodeCoefficients(data []byte) (*Frame, []CodingUnit, error) {
	f, err := ParseFrame(data)
	if err != nil {
		return nil, nil, err
	}
	units, err := f.DecodeCoefficients()
	if err != nil {
		return nil, nil, err
	}
	return f, units, nil
}
