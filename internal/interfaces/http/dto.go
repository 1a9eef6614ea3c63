package http

import (
	"github.com/shopspring/decimal"

	"posprint/internal/domain/models"
	"posprint/internal/service/printing"
)

// PrintReceiptRequestDTO тело POST /v1/receipts/req/print в формате кассовых клиентов.
type PrintReceiptRequestDTO struct {
	SourceIP   string     `json:"sourceIp"`
	OperatorID string     `json:"operatorId"`
	Fiscal     bool       `json:"fiscal"`
	Receipt    ReceiptDTO `json:"receipt"`
}

// ReceiptDTO чек. Отсутствующая валюта означает BGN, сумма по умолчанию 0.00.
type ReceiptDTO struct {
	ReceiptID    string           `json:"receiptId"`
	PrefixLines  []string         `json:"prefixLines"`
	ReceiptItems []ReceiptItemDTO `json:"receiptItems"`
	SuffixLines  []string         `json:"suffixLines"`
	Currency     string           `json:"currency"`
	Amount       decimal.Decimal  `json:"amount"`
}

// ReceiptItemDTO позиция. Отсутствующее количество означает 1, отдел "0".
type ReceiptItemDTO struct {
	Name       string              `json:"name"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	Price      decimal.Decimal     `json:"price"`
	Vat        decimal.Decimal     `json:"vat"`
	Department string              `json:"department"`
}

// CloseReceiptDTO тело DELETE /v1/receipts/req/print.
type CloseReceiptDTO struct {
	SourceIP string `json:"sourceIp"`
}

// PrintReceiptResponseDTO ответ на печать.
type PrintReceiptResponseDTO struct {
	Warnings    models.WarningSet  `json:"warnings"`
	Disposition models.Disposition `json:"disposition"`
}

// StatusResponseDTO ответ GET /v1/printers/status.
type StatusResponseDTO struct {
	Address     string             `json:"address"`
	Warnings    models.WarningSet  `json:"warnings"`
	Disposition models.Disposition `json:"disposition"`
}

// ErrorResponse тело ответа об ошибке.
type ErrorResponse struct {
	Message   string `json:"message"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId,omitempty"`
}

// ToRequest переводит DTO в запрос оркестратора.
func (d PrintReceiptRequestDTO) ToRequest() printing.PrintRequest {
	items := make([]models.ItemFields, 0, len(d.Receipt.ReceiptItems))
	for _, it := range d.Receipt.ReceiptItems {
		items = append(items, models.ItemFields{
			Name:       it.Name,
			Quantity:   it.Quantity,
			Price:      it.Price,
			Vat:        it.Vat,
			Department: it.Department,
		})
	}
	return printing.PrintRequest{
		Address:    d.SourceIP,
		Kind:       printing.KindOf(d.Fiscal),
		OperatorID: d.OperatorID,
		Receipt: models.ReceiptFields{
			ReceiptID:   d.Receipt.ReceiptID,
			PrefixLines: d.Receipt.PrefixLines,
			Items:       items,
			SuffixLines: d.Receipt.SuffixLines,
			Currency:    d.Receipt.Currency,
			Amount:      d.Receipt.Amount,
		},
	}
}
