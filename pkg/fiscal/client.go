package fiscal

import (
	"context"
	"fmt"
	"strings"
)

// Item позиция чека в формате протокола (числа уже отформатированы).
type Item struct {
	Name       string
	Quantity   string // "2.000"
	Price      string // "1.50"
	Vat        string // "20.00"
	Department string
}

// Receipt чек в формате протокола.
type Receipt struct {
	Number   string // Номер чека в учётной системе, может быть пустым
	Header   []string
	Items    []Item
	Footer   []string
	Currency string
	Amount   string // "0.00" - оплата точной суммы
}

// Client интерфейс определяет методы для работы с фискальным принтером
type Client interface {
	// Connect устанавливает соединение с устройством
	Connect(ctx context.Context) error

	// Disconnect разрывает соединение с устройством
	Disconnect() error

	// SendCommand отправляет команду и возвращает флаги состояния из ответа
	SendCommand(ctx context.Context, cmd string) (Flags, error)

	// GetStatus запрашивает текущее состояние устройства
	GetStatus(ctx context.Context) (Flags, error)

	// PrintFiscalReceipt печатает фискальный чек
	PrintFiscalReceipt(ctx context.Context, r Receipt) (Flags, error)

	// PrintNonFiscalReceipt печатает нефискальный (служебный) документ
	PrintNonFiscalReceipt(ctx context.Context, r Receipt) (Flags, error)

	// CloseOpenReceipts закрывает незавершённые документы, оставшиеся после сбоя
	CloseOpenReceipts(ctx context.Context) (Flags, error)
}

type fiscalClient struct {
	transport *Transport
}

// NewClient создаёт новый экземпляр Client с заданной конфигурацией подключения
func NewClient(config Config) Client {
	return &fiscalClient{transport: NewTransport(config)}
}

func (c *fiscalClient) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

func (c *fiscalClient) Disconnect() error {
	return c.transport.Disconnect()
}

func (c *fiscalClient) SendCommand(ctx context.Context, cmd string) (Flags, error) {
	resp, err := c.transport.Exchange(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return parseReply(resp)
}

func (c *fiscalClient) GetStatus(ctx context.Context) (Flags, error) {
	return c.SendCommand(ctx, "<GET STATUS=''/>")
}

// PrintFiscalReceipt: OPEN, строки заголовка, позиции, TOTAL, PAY, строки подвала, CLOSE.
// При ошибке устройства последовательность прерывается, чек остаётся открытым
// и закрывается отдельно через CloseOpenReceipts.
func (c *fiscalClient) PrintFiscalReceipt(ctx context.Context, r Receipt) (Flags, error) {
	cmds := make([]string, 0, len(r.Header)+len(r.Items)+len(r.Footer)+4)

	open := fmt.Sprintf("<Do CHECK='OPEN' TYPE='1' CUR='%s'", escapeXMLText(r.Currency))
	if r.Number != "" {
		open += fmt.Sprintf(" NUM='%s'", escapeXMLText(r.Number))
	}
	cmds = append(cmds, open+"/>")
	cmds = append(cmds, textLines(r.Header)...)
	for _, it := range r.Items {
		cmds = append(cmds, fmt.Sprintf("<ADD ITEM='%s' PRICE='%s' TAX='%s' DEP='%s'><NAME>%s</NAME></ADD>",
			it.Quantity, it.Price, it.Vat, escapeXMLText(it.Department), escapeXMLText(it.Name)))
	}
	cmds = append(cmds, "<Do CHECK='TOTAL'/>")
	if r.Amount == "" || isZero(r.Amount) {
		cmds = append(cmds, "<Do CHECK='PAY'/>")
	} else {
		cmds = append(cmds, fmt.Sprintf("<Do CHECK='PAY' SUM='%s'/>", r.Amount))
	}
	cmds = append(cmds, textLines(r.Footer)...)
	cmds = append(cmds, "<Do CHECK='CLOSE'/>")

	return c.run(ctx, cmds)
}

// PrintNonFiscalReceipt печатает позиции как обычные строки текста.
func (c *fiscalClient) PrintNonFiscalReceipt(ctx context.Context, r Receipt) (Flags, error) {
	cmds := make([]string, 0, len(r.Header)+len(r.Items)+len(r.Footer)+3)
	cmds = append(cmds, "<Do DOC='OPEN'/>")
	cmds = append(cmds, textLines(r.Header)...)
	for _, it := range r.Items {
		line := fmt.Sprintf("%s %s x %s", it.Name, it.Quantity, it.Price)
		cmds = append(cmds, textLines([]string{line})...)
	}
	if r.Amount != "" && !isZero(r.Amount) {
		cmds = append(cmds, textLines([]string{fmt.Sprintf("%s %s", r.Amount, r.Currency)})...)
	}
	cmds = append(cmds, textLines(r.Footer)...)
	cmds = append(cmds, "<Do DOC='CLOSE'/>")

	return c.run(ctx, cmds)
}

// CloseOpenReceipts проверяет состояние и закрывает то, что осталось открытым.
// Если ничего не открыто, отправляется только запрос состояния.
func (c *fiscalClient) CloseOpenReceipts(ctx context.Context) (Flags, error) {
	flags, err := c.GetStatus(ctx)
	if err != nil {
		return flags, err
	}

	var cmds []string
	if flags.Has(FlagFiscalReceiptOpen) {
		cmds = append(cmds, "<Do CHECK='PAY'/>", "<Do CHECK='CLOSE'/>")
	}
	if flags.Has(FlagNonFiscalReceiptOpen) {
		cmds = append(cmds, "<Do DOC='CLOSE'/>")
	}
	if len(cmds) == 0 {
		return flags, nil
	}
	return c.run(ctx, cmds)
}

// run отправляет команды по порядку и возвращает флаги последнего ответа.
// Длина всех команд проверяется до отправки первой, чтобы не оставить открытый чек.
func (c *fiscalClient) run(ctx context.Context, cmds []string) (Flags, error) {
	for _, cmd := range cmds {
		if n := len(encodeCP1251(cmd)); n > maxFrame {
			return 0, fmt.Errorf("%w (%d bytes)", ErrCommandTooLong, n)
		}
	}

	var flags Flags
	for _, cmd := range cmds {
		f, err := c.SendCommand(ctx, cmd)
		if err != nil {
			return f, err
		}
		flags = f
	}
	return flags, nil
}

func textLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, "<TEXT>"+escapeXMLText(l)+"</TEXT>")
	}
	return out
}

func isZero(num string) bool {
	return strings.Trim(num, "0.") == ""
}
