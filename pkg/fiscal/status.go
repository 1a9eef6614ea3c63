package fiscal

// Flags битовая маска состояния устройства (атрибут STS в каждом ответе).
type Flags uint32

const (
	FlagGeneralError Flags = 1 << iota
	FlagPrintingMechanismError
	FlagClockNotSet
	FlagCoverOpen
	FlagEndOfPaper
	FlagNearPaperEnd
	FlagFiscalReceiptOpen
	FlagNonFiscalReceiptOpen
	FlagFiscalMemoryFull
	FlagFiscalMemoryStoreError
	FlagSyntaxError
	FlagInvalidCommand
	FlagOverflow
)

// Has проверяет, что установлены все биты f.
func (s Flags) Has(f Flags) bool {
	return s&f == f
}

// Bits раскладывает маску на отдельные флаги в порядке возрастания.
func (s Flags) Bits() []Flags {
	var out []Flags
	for bit := Flags(1); bit != 0 && bit <= s; bit <<= 1 {
		if s&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}
