package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	saleColumns = `id, reference, company_id, party_id, currency, carrier_id, state,
		shipping_estimate, shipping_estimate_currency, version, created_at, updated_at`
)

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{db: store.DB()}
}

func (r *saleRepository) Create(sale domain.Sale) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		sale.ID, sale.Reference, sale.CompanyID, sale.PartyID, sale.CurrencyCode, sale.CarrierID,
		string(sale.State), sale.ShippingEstimate.Amount, sale.ShippingEstimate.Currency,
		sale.Version, sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSaleVersionConflict
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	if err = insertLines(ctx, tx, sale.ID, sale.Lines); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create sale: %w", err)
	}
	return nil
}

func (r *saleRepository) Get(id string) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sale, err := scanSale(r.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.ErrSaleNotFound
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}

	lines, err := r.loadLines(ctx, sale.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Lines = lines
	return sale, nil
}

func (r *saleRepository) ListByParty(partyID string, limit int) ([]domain.Sale, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE party_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", partyID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, partyID)
	}
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	for i := range sales {
		lines, err := r.loadLines(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Lines = lines
	}
	return sales, nil
}

// Save обновляет шапку заказа и целиком переписывает его строки в одной транзакции.
func (r *saleRepository) Save(sale domain.Sale) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET reference = $1,
		    party_id = $2,
		    currency = $3,
		    carrier_id = $4,
		    state = $5,
		    shipping_estimate = $6,
		    shipping_estimate_currency = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		sale.Reference, sale.PartyID, sale.CurrencyCode, sale.CarrierID, string(sale.State),
		sale.ShippingEstimate.Amount, sale.ShippingEstimate.Currency, sale.UpdatedAt,
		sale.ID, sale.Version,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := saleExistsTx(ctx, tx, sale.ID)
		if existsErr != nil {
			err = existsErr
			return err
		}
		if !exists {
			err = domain.ErrSaleNotFound
			return err
		}
		err = domain.ErrSaleVersionConflict
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, sale.ID); err != nil {
		return fmt.Errorf("delete sale lines: %w", err)
	}
	if err = insertLines(ctx, tx, sale.ID, sale.Lines); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save sale: %w", err)
	}
	return nil
}

func insertLines(ctx context.Context, tx *sql.Tx, saleID string, lines []domain.SaleLine) error {
	for pos, line := range lines {
		taxes := line.Taxes
		if taxes == nil {
			taxes = []string{}
		}
		taxesJSON, err := json.Marshal(taxes)
		if err != nil {
			return fmt.Errorf("marshal line taxes: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (
				sale_id, id, line_type, product_id, description, quantity, unit,
				unit_price, amount, shipment_cost, taxes, sequence, position
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			saleID, line.ID, string(line.Type), line.ProductID, line.Description, line.Quantity, line.Unit,
			line.UnitPrice, line.Amount, line.ShipmentCost, string(taxesJSON), line.Sequence, pos,
		); err != nil {
			return fmt.Errorf("insert sale line: %w", err)
		}
	}
	return nil
}

func (r *saleRepository) loadLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, line_type, product_id, description, quantity, unit,
		       unit_price, amount, shipment_cost, taxes, sequence
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY position ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("load sale lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.SaleLine
	for rows.Next() {
		var (
			line      domain.SaleLine
			lineType  string
			taxesJSON []byte
		)
		if err := rows.Scan(
			&line.ID, &lineType, &line.ProductID, &line.Description, &line.Quantity, &line.Unit,
			&line.UnitPrice, &line.Amount, &line.ShipmentCost, &taxesJSON, &line.Sequence,
		); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		line.Type = domain.LineType(lineType)
		if err := json.Unmarshal(taxesJSON, &line.Taxes); err != nil {
			return nil, fmt.Errorf("decode line taxes: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale lines: %w", err)
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale  domain.Sale
		state string
	)
	if err := row.Scan(
		&sale.ID, &sale.Reference, &sale.CompanyID, &sale.PartyID, &sale.CurrencyCode, &sale.CarrierID,
		&state, &sale.ShippingEstimate.Amount, &sale.ShippingEstimate.Currency,
		&sale.Version, &sale.CreatedAt, &sale.UpdatedAt,
	); err != nil {
		return domain.Sale{}, err
	}
	sale.State = domain.SaleState(state)
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func saleExistsTx(ctx context.Context, tx *sql.Tx, saleID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE id = $1`, saleID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check sale exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.SaleRepository = (*saleRepository)(nil)
