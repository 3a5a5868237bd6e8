// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

const (
	pidFT232R = 0x6001
	pidFT2232 = 0x6010
)

var profiles = map[string]*Profile{
	"M3SK":  newSPIProfile("M3SK"),
	"H3SK":  newSPIProfile("H3SK"),
	"V3U":   newV3U("V3U", "DIPSW50"),
	"S4":    newV3U("S4", "DIPSW8"),
	"V3HSK": newV3HSK(),
	"V3MSK": newV3MSK(),
}

func spi(name string, addr uint64, vlen int, acc Access) Register {
	return Register{Name: name, Addr: addr, AddrLen: 1, ValLen: vlen, Access: acc}
}

func wide(name string, addr uint64, vlen int, acc Access) Register {
	return Register{Name: name, Addr: addr, AddrLen: 2, ValLen: vlen, Access: acc}
}

func newSPIProfile(name string) *Profile {
	return NewProfile(
		Profile{Name: name, Protocol: SPI, Product: pidFT232R},
		[]Register{
			spi("MODE", 0x00, 4, ReadWrite),
			spi("MUX", 0x02, 4, ReadWrite),
			spi("DIPSW6", 0x08, 4, ReadOnly),
			spi("RESET", 0x80, 4, ReadWrite),
			spi("VERSION", 0xFF, 4, ReadOnly),
		},
	)
}

// newV3U returns the profile of the V3U board and of its S4 sibling, which
// only differs by the name of its DIP switches register.
func newV3U(name, dipsw string) *Profile {
	return NewProfile(
		Profile{
			Name:      name,
			Protocol:  I2C,
			Product:   pidFT2232,
			Interface: 1,
			Flash: i2cFlash(
				Field{Addr: 0x0008, Offset: 8, Len: 8, Live: true},
				Field{Addr: 0x0025, Offset: 37, Len: 1, Live: true},
				Field{Addr: 0x0030, Offset: 48, Len: 1, Live: true},
				Field{Addr: 0x0036, Offset: 54, Len: 1, Live: true},
				Field{Addr: 0x1000, Offset: 0, Len: 2},
				Field{Addr: 0x1002, Offset: 2, Len: 2},
				Field{Addr: 0x1004, Offset: 4, Len: 4},
				Field{Addr: 0x1008, Offset: 8, Len: 6},
			),
		},
		[]Register{
			wide("PRODUCT", 0x0000, 4, ReadOnly),
			wide("VERSION", 0x0004, 4, ReadOnly),
			wide("MODE_SET", 0x0008, 8, ReadWrite),
			wide("MODE_NEXT", 0x0010, 8, ReadOnly),
			wide("MODE_LAST", 0x0018, 8, ReadOnly),
			wide(dipsw, 0x0020, 1, ReadOnly),
			wide("I2C_ADDR", 0x0022, 1, ReadWrite),
			wide("RESET", 0x0024, 1, ReadWrite),
			wide("POWER_CFG", 0x0025, 1, ReadWrite),
			wide("PERI_CFG", 0x0030, 1, ReadWrite),
			wide("UART_CFG", 0x0036, 1, ReadWrite),
			wide("UART_STATUS", 0x0037, 1, ReadOnly),
			wide("CNT_POWER", 0x0080, 4, ReadOnly),
			wide("CNT_RESET", 0x0084, 4, ReadOnly),
			wide("PCB_VERSION", 0x1000, 2, ReadOnly),
			wide("SOC_VERSION", 0x1002, 2, ReadOnly),
			wide("PCB_SN", 0x1004, 4, ReadOnly),
			wide("MAC", 0x1008, 6, ReadOnly),
		},
	)
}

func newV3HSK() *Profile {
	return NewProfile(
		Profile{
			Name:      "V3HSK",
			Protocol:  I2C,
			Product:   pidFT2232,
			Interface: 1,
			Flash: i2cFlash(
				Field{Addr: 0x0008, Offset: 8, Len: 5, Live: true},
				Field{Addr: 0x0025, Offset: 37, Len: 1, Live: true},
				Field{Addr: 0x0026, Offset: 38, Len: 1, Live: true},
				Field{Addr: 0x0027, Offset: 39, Len: 1, Live: true},
				Field{Addr: 0x0030, Offset: 48, Len: 1, Live: true},
				Field{Addr: 0x0034, Offset: 52, Len: 1, Live: true},
				Field{Addr: 0x0035, Offset: 53, Len: 1, Live: true},
				Field{Addr: 0x0036, Offset: 54, Len: 1, Live: true},
				Field{Addr: 0x1000, Offset: 0, Len: 2},
				Field{Addr: 0x1002, Offset: 2, Len: 2},
				Field{Addr: 0x1004, Offset: 4, Len: 2},
				Field{Addr: 0x1008, Offset: 8, Len: 6},
			),
		},
		[]Register{
			wide("PRODUCT", 0x0000, 4, ReadOnly),
			wide("VERSION", 0x0004, 4, ReadOnly),
			wide("MODE_SET", 0x0008, 5, ReadWrite),
			wide("MODE_NEXT", 0x0010, 5, ReadOnly),
			wide("MODE_LAST", 0x0018, 5, ReadOnly),
			wide("DIPSW4", 0x0020, 1, ReadOnly),
			wide("DIPSW5", 0x0021, 1, ReadOnly),
			wide("I2C_ADDR", 0x0022, 1, ReadWrite),
			wide("RESET", 0x0024, 1, ReadWrite),
			wide("POWER_CFG", 0x0025, 1, ReadWrite),
			wide("PMIC_CFG", 0x0026, 1, ReadWrite),
			wide("PCIE_CLK_CFG", 0x0027, 1, ReadWrite),
			wide("PERI_CFG", 0x0030, 4, ReadWrite),
			wide("LEDS", 0x0034, 1, ReadWrite),
			wide("LEDS_CFG", 0x0035, 1, ReadWrite),
			wide("UART_CFG", 0x0036, 1, ReadWrite),
			wide("UART_STATUS", 0x0037, 1, ReadOnly),
			wide("PCB_VERSION", 0x1000, 2, ReadOnly),
			wide("SOC_VERSION", 0x1002, 2, ReadOnly),
			wide("PCB_SN", 0x1004, 2, ReadOnly),
			wide("MAC", 0x1008, 6, ReadOnly),
		},
	)
}

// newV3MSK returns the profile of the V3MSK board.
// Its registers are 16-bit words: wider registers span consecutive
// addresses.
func newV3MSK() *Profile {
	return NewProfile(
		Profile{
			Name:      "V3MSK",
			Protocol:  SMI,
			Product:   pidFT232R,
			Pipelined: &Range{Lo: 0x200, Hi: 0x3FF},
			Flash: smiFlash(
				Field{Addr: 0x004, Offset: 8, Len: 4, Live: true},
				Field{Addr: 0x00B, Offset: 22, Len: 2, Live: true, Xor: []byte{0x00, 0x80}},
				Field{Addr: 0x00C, Offset: 24, Len: 4, Live: true},
				Field{Addr: 0x00E, Offset: 28, Len: 2, Live: true},
				Field{Addr: 0x300, Offset: 0, Len: 2},
				Field{Addr: 0x301, Offset: 2, Len: 2},
				Field{Addr: 0x302, Offset: 4, Len: 4},
			),
		},
		[]Register{
			wide("PRODUCT", 0x000, 4, ReadOnly),
			wide("VERSION", 0x002, 4, ReadOnly),
			wide("MODE_SET", 0x004, 4, ReadWrite),
			wide("MODE_APPLIED", 0x006, 4, ReadOnly),
			wide("DIPSW", 0x008, 2, ReadOnly),
			wide("RESET", 0x00A, 2, ReadWrite),
			wide("POWER_CFG", 0x00B, 2, ReadWrite),
			wide("PERI_CFG", 0x00C, 4, ReadWrite),
			wide("LEDS", 0x00E, 4, ReadWrite),
			wide("PCB_VERSION", 0x300, 2, ReadOnly),
			wide("SOC_VERSION", 0x301, 2, ReadOnly),
			wide("PCB_SN", 0x302, 4, ReadOnly),
		},
	)
}
