package currency

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// Converter пересчитывает суммы по курсам из справочника валют.
type Converter struct {
	currencies domain.CurrencyRepository
}

// NewConverter создаёт конвертер поверх репозитория валют.
func NewConverter(currencies domain.CurrencyRepository) *Converter {
	return &Converter{currencies: currencies}
}

// Convert переводит amount из валюты from в валюту to с округлением до точности to.
// Одинаковые коды возвращают сумму без изменений и без обращения к справочнику.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	src, err := c.lookup(from)
	if err != nil {
		return decimal.Zero, err
	}
	dst, err := c.lookup(to)
	if err != nil {
		return decimal.Zero, err
	}

	// Курсы заданы относительно базовой валюты: amount * rate(to) / rate(from).
	converted := amount.Mul(dst.Rate).Div(src.Rate)
	return dst.Round(converted), nil
}

// Round округляет amount до точности валюты code.
func (c *Converter) Round(ctx context.Context, amount decimal.Decimal, code string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	cur, err := c.currencies.Get(code)
	if err != nil {
		return decimal.Zero, fmt.Errorf("currency %q: %w", code, err)
	}
	return cur.Round(amount), nil
}

func (c *Converter) lookup(code string) (domain.Currency, error) {
	cur, err := c.currencies.Get(code)
	if err != nil {
		return domain.Currency{}, fmt.Errorf("currency %q: %w", code, err)
	}
	if !cur.Rate.IsPositive() {
		return domain.Currency{}, fmt.Errorf("currency %q: %w", code, domain.ErrCurrencyRateInvalid)
	}
	return cur, nil
}

var _ domain.CurrencyConverter = (*Converter)(nil)
