package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

const shipmentColumns = `id, sale_id, company_id, customer_id, carrier_id, cost, cost_currency, state, created_at`

type shipmentRepository struct {
	db *sql.DB
}

// NewShipmentRepository создаёт PostgreSQL-реализацию ShipmentRepository.
func NewShipmentRepository(store *Store) domain.ShipmentRepository {
	return &shipmentRepository{db: store.DB()}
}

func (r *shipmentRepository) Create(shipment domain.Shipment) (err error) {
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
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		shipment.ID, shipment.SaleID, shipment.CompanyID, shipment.CustomerID, shipment.CarrierID,
		shipment.Cost, shipment.CostCurrency, string(shipment.State), shipment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSaleVersionConflict
		}
		return fmt.Errorf("insert shipment: %w", err)
	}

	for pos, move := range shipment.Moves {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO shipment_moves (shipment_id, id, product_id, quantity, position)
			VALUES ($1,$2,$3,$4,$5)
		`, shipment.ID, move.ID, move.ProductID, move.Quantity, pos); err != nil {
			return fmt.Errorf("insert shipment move: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create shipment: %w", err)
	}
	return nil
}

func (r *shipmentRepository) Get(id string) (domain.Shipment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	shipment, err := scanShipment(r.db.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shipment{}, domain.ErrShipmentNotFound
		}
		return domain.Shipment{}, fmt.Errorf("select shipment: %w", err)
	}

	moves, err := r.loadMoves(ctx, shipment.ID)
	if err != nil {
		return domain.Shipment{}, err
	}
	shipment.Moves = moves
	return shipment, nil
}

// ListBySale возвращает отгрузки заказа в порядке создания.
func (r *shipmentRepository) ListBySale(saleID string) ([]domain.Shipment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM shipments
		WHERE sale_id = $1
		ORDER BY created_at ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []domain.Shipment
	for rows.Next() {
		shipment, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment row: %w", err)
		}
		shipments = append(shipments, shipment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipment rows: %w", err)
	}

	for i := range shipments {
		moves, err := r.loadMoves(ctx, shipments[i].ID)
		if err != nil {
			return nil, err
		}
		shipments[i].Moves = moves
	}
	return shipments, nil
}

func (r *shipmentRepository) loadMoves(ctx context.Context, shipmentID string) ([]domain.Move, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, quantity
		FROM shipment_moves
		WHERE shipment_id = $1
		ORDER BY position ASC
	`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("load shipment moves: %w", err)
	}
	defer rows.Close()

	var moves []domain.Move
	for rows.Next() {
		var move domain.Move
		if err := rows.Scan(&move.ID, &move.ProductID, &move.Quantity); err != nil {
			return nil, fmt.Errorf("scan shipment move: %w", err)
		}
		moves = append(moves, move)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipment moves: %w", err)
	}
	return moves, nil
}

func scanShipment(row rowScanner) (domain.Shipment, error) {
	var (
		shipment domain.Shipment
		state    string
	)
	if err := row.Scan(
		&shipment.ID, &shipment.SaleID, &shipment.CompanyID, &shipment.CustomerID, &shipment.CarrierID,
		&shipment.Cost, &shipment.CostCurrency, &state, &shipment.CreatedAt,
	); err != nil {
		return domain.Shipment{}, err
	}
	shipment.State = domain.ShipmentState(state)
	shipment.CreatedAt = shipment.CreatedAt.UTC()
	return shipment, nil
}

var _ domain.ShipmentRepository = (*shipmentRepository)(nil)
