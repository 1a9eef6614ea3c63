package models

import (
	"encoding/json"
	"sort"
)

// Status код состояния, который сообщает фискальный принтер.
type Status string

const (
	StatusGeneralError           Status = "GENERAL_ERROR"
	StatusPrintingMechanismError Status = "PRINTING_MECHANISM_ERROR"
	StatusClockIsNotSet          Status = "CLOCK_IS_NOT_SET"
	StatusCoverIsOpen            Status = "COVER_IS_OPEN"
	StatusEndOfPaper             Status = "END_OF_PAPER"
	StatusNearPaperEnd           Status = "NEAR_PAPER_END"
	StatusFiscalReceiptIsOpen    Status = "FISCAL_RECEIPT_IS_OPEN"
	StatusNonFiscalReceiptIsOpen Status = "NON_FISCAL_RECEIPT_IS_OPEN"
	StatusFiscalMemoryFull       Status = "FISCAL_MEMORY_FULL"
	StatusFiscalMemoryStoreError Status = "FISCAL_MEMORY_STORE_ERROR"
	StatusSyntaxError            Status = "SYNTAX_ERROR"
	StatusInvalidCommand         Status = "INVALID_COMMAND"
	StatusOverflow               Status = "OVERFLOW"
)

// IsOpenReceipt сообщает, что код означает незакрытый чек (восстанавливаемое состояние).
func (s Status) IsOpenReceipt() bool {
	return s == StatusFiscalReceiptIsOpen || s == StatusNonFiscalReceiptIsOpen
}

// WarningSet множество кодов состояния. Хранится отсортированным и без повторов.
type WarningSet []Status

// NewWarningSet строит множество из произвольного списка кодов.
func NewWarningSet(codes ...Status) WarningSet {
	if len(codes) == 0 {
		return WarningSet{}
	}
	seen := make(map[Status]struct{}, len(codes))
	set := make(WarningSet, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		set = append(set, c)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

// Contains проверяет наличие кода в множестве.
func (w WarningSet) Contains(code Status) bool {
	for _, c := range w {
		if c == code {
			return true
		}
	}
	return false
}

// MarshalJSON всегда отдаёт массив, даже для пустого множества.
func (w WarningSet) MarshalJSON() ([]byte, error) {
	if w == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Status(w))
}

// Disposition итоговая классификация попытки печати.
type Disposition int

const (
	Success Disposition = iota
	OpenReceiptWarning
	Failure
)

func (d Disposition) String() string {
	switch d {
	case Success:
		return "SUCCESS"
	case OpenReceiptWarning:
		return "OPEN_RECEIPT_WARNING"
	case Failure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

func (d Disposition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Classify переводит набор кодов устройства в Disposition.
// Незакрытый чек имеет приоритет над любыми другими кодами.
func Classify(warnings WarningSet) Disposition {
	for _, w := range warnings {
		if w.IsOpenReceipt() {
			return OpenReceiptWarning
		}
	}
	if len(warnings) > 0 {
		return Failure
	}
	return Success
}

// PrintOutcome результат одной операции печати.
type PrintOutcome struct {
	Warnings    WarningSet  `json:"warnings"`
	Disposition Disposition `json:"disposition"`
}

// NewPrintOutcome классифицирует набор кодов и формирует результат.
func NewPrintOutcome(warnings WarningSet) PrintOutcome {
	warnings = NewWarningSet(warnings...)
	return PrintOutcome{
		Warnings:    warnings,
		Disposition: Classify(warnings),
	}
}

// Accepted true для Success и OpenReceiptWarning.
func (o PrintOutcome) Accepted() bool {
	return o.Disposition != Failure
}

// Err возвращает *DeviceWarningError для Failure и nil в остальных случаях.
func (o PrintOutcome) Err() error {
	if o.Disposition != Failure {
		return nil
	}
	return &DeviceWarningError{Warnings: o.Warnings}
}
