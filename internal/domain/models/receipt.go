package models

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency валюта чека, если клиент её не указал.
const DefaultCurrency = "BGN"

// DefaultDepartment отдел товара по умолчанию.
const DefaultDepartment = "0"

// MaxTextLength предел длины (в символах) наименования, отдела, номера чека и строки текста.
// Любая команда с таким текстом помещается в один кадр протокола.
const MaxTextLength = 256

// ItemFields входные данные позиции чека.
type ItemFields struct {
	Name       string
	Quantity   decimal.NullDecimal // не задано -> 1
	Price      decimal.Decimal
	Vat        decimal.Decimal
	Department string
}

// ReceiptItem позиция чека. Неизменяема после создания.
type ReceiptItem struct {
	name       string
	quantity   decimal.Decimal
	price      decimal.Decimal
	vat        decimal.Decimal
	department string
}

// NewReceiptItem проверяет поля и создаёт позицию.
func NewReceiptItem(f ItemFields) (ReceiptItem, error) {
	if strings.TrimSpace(f.Name) == "" {
		return ReceiptItem{}, &ValidationError{Field: "name", Reason: "пустое наименование"}
	}
	if err := checkLength("name", f.Name); err != nil {
		return ReceiptItem{}, err
	}
	if err := checkLength("department", f.Department); err != nil {
		return ReceiptItem{}, err
	}

	qty := decimal.NewFromInt(1)
	if f.Quantity.Valid {
		qty = f.Quantity.Decimal
	}
	if !qty.IsPositive() {
		return ReceiptItem{}, &ValidationError{Field: "quantity", Reason: "количество должно быть больше нуля"}
	}
	if f.Price.IsNegative() {
		return ReceiptItem{}, &ValidationError{Field: "price", Reason: "цена не может быть отрицательной"}
	}
	if f.Vat.IsNegative() {
		return ReceiptItem{}, &ValidationError{Field: "vat", Reason: "ставка НДС не может быть отрицательной"}
	}

	dep := f.Department
	if dep == "" {
		dep = DefaultDepartment
	}

	return ReceiptItem{
		name:       f.Name,
		quantity:   qty,
		price:      f.Price,
		vat:        f.Vat,
		department: dep,
	}, nil
}

func (i ReceiptItem) Name() string { return i.name }
func (i ReceiptItem) Quantity() decimal.Decimal { return i.quantity }
func (i ReceiptItem) Price() decimal.Decimal { return i.price }
func (i ReceiptItem) Vat() decimal.Decimal { return i.vat }
func (i ReceiptItem) Department() string { return i.department }

// Equal сравнивает позиции по значению.
func (i ReceiptItem) Equal(o ReceiptItem) bool {
	return i.name == o.name &&
		i.quantity.Equal(o.quantity) &&
		i.price.Equal(o.price) &&
		i.vat.Equal(o.vat) &&
		i.department == o.department
}

// ReceiptFields входные данные чека.
type ReceiptFields struct {
	ReceiptID   string
	PrefixLines []string
	Items       []ItemFields
	SuffixLines []string
	Currency    string
	Amount      decimal.Decimal
}

// Receipt чек, готовый к отправке на устройство.
// Сумма передаётся клиентом и не пересчитывается из позиций: устройство считает её само.
type Receipt struct {
	id       string
	prefix   []string
	items    []ReceiptItem
	suffix   []string
	currency string
	amount   decimal.Decimal
}

// NewReceipt проверяет поля чека и всех позиций. Порядок позиций сохраняется.
// Пустой список позиций допустим.
func NewReceipt(f ReceiptFields) (Receipt, error) {
	cur, err := normalizeCurrency(f.Currency)
	if err != nil {
		return Receipt{}, err
	}
	if err := checkLength("receiptId", f.ReceiptID); err != nil {
		return Receipt{}, err
	}
	if err := checkLines("prefixLines", f.PrefixLines); err != nil {
		return Receipt{}, err
	}
	if err := checkLines("suffixLines", f.SuffixLines); err != nil {
		return Receipt{}, err
	}

	items := make([]ReceiptItem, 0, len(f.Items))
	for idx, itf := range f.Items {
		item, err := NewReceiptItem(itf)
		if err != nil {
			if ve, ok := err.(*ValidationError); ok {
				return Receipt{}, &ValidationError{
					Field:  "items[" + strconv.Itoa(idx) + "]." + ve.Field,
					Reason: ve.Reason,
				}
			}
			return Receipt{}, err
		}
		items = append(items, item)
	}

	return Receipt{
		id:       f.ReceiptID,
		prefix:   cloneLines(f.PrefixLines),
		items:    items,
		suffix:   cloneLines(f.SuffixLines),
		currency: cur,
		amount:   f.Amount,
	}, nil
}

func (r Receipt) ID() string { return r.id }
func (r Receipt) PrefixLines() []string { return cloneLines(r.prefix) }
func (r Receipt) SuffixLines() []string { return cloneLines(r.suffix) }
func (r Receipt) Currency() string { return r.currency }
func (r Receipt) Amount() decimal.Decimal { return r.amount }

// Items возвращает копию позиций в порядке печати.
func (r Receipt) Items() []ReceiptItem {
	out := make([]ReceiptItem, len(r.items))
	copy(out, r.items)
	return out
}

// normalizeCurrency: пусто -> BGN, регистр приводится, неизвестный ISO 4217 код отклоняется.
func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", &ValidationError{Field: "currency", Reason: "код валюты должен состоять из 3 букв"}
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", &ValidationError{Field: "currency", Reason: "неизвестный код валюты " + code}
	}
	return unit.String(), nil
}

func cloneLines(lines []string) []string {
	if len(lines) == 0 {
		return []string{}
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func checkLength(field, s string) error {
	if n := utf8.RuneCountInString(s); n > MaxTextLength {
		return &ValidationError{
			Field:  field,
			Reason: "длина " + strconv.Itoa(n) + " больше " + strconv.Itoa(MaxTextLength) + " символов",
		}
	}
	return nil
}

func checkLines(field string, lines []string) error {
	for idx, l := range lines {
		if err := checkLength(field+"["+strconv.Itoa(idx)+"]", l); err != nil {
			return err
		}
	}
	return nil
}
