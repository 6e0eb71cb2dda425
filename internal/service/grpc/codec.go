package grpcsvc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/carrier-pricelist/internal/domain"
)

// request: обёртка над входящим Struct с типизированным доступом к полям.
type request struct {
	fields map[string]*structpb.Value
}

func newRequest(in *structpb.Struct) request {
	if in == nil {
		return request{fields: map[string]*structpb.Value{}}
	}
	return request{fields: in.GetFields()}
}

func (r request) str(key string) string {
	v, ok := r.fields[key]
	if !ok {
		return ""
	}
	return valueString(v)
}

func (r request) required(key string) (string, error) {
	value := strings.TrimSpace(r.str(key))
	if value == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return value, nil
}

func (r request) boolean(key string) bool {
	v, ok := r.fields[key]
	if !ok {
		return false
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return kind.BoolValue
	case *structpb.Value_StringValue:
		b, _ := strconv.ParseBool(kind.StringValue)
		return b
	default:
		return false
	}
}

func (r request) integer(key string) (int, error) {
	v, ok := r.fields[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if kind.NumberValue != math.Trunc(kind.NumberValue) {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int(kind.NumberValue), nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(strings.TrimSpace(kind.StringValue))
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
}

// scope собирает явный контекст вызова из полей company_id и ignore_computation.
func (r request) scope() domain.Scope {
	return domain.Scope{
		CompanyID:         strings.TrimSpace(r.str("company_id")),
		IgnoreComputation: r.boolean("ignore_computation"),
	}
}

func (r request) lines() ([]domain.SaleLine, error) {
	v, ok := r.fields["lines"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, status.Error(codes.InvalidArgument, "lines must be a list")
	}

	lines := make([]domain.SaleLine, 0, len(list.GetValues()))
	for idx, item := range list.GetValues() {
		obj := item.GetStructValue()
		if obj == nil {
			return nil, status.Errorf(codes.InvalidArgument, "lines[%d] must be an object", idx)
		}
		line, err := decodeLine(newRequest(obj), idx)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func decodeLine(r request, idx int) (domain.SaleLine, error) {
	quantity, err := decimalValue(r.fields["quantity"])
	if err != nil {
		return domain.SaleLine{}, status.Errorf(codes.InvalidArgument, "lines[%d].quantity: %v", idx, err)
	}
	unitPrice, err := decimalValue(r.fields["unit_price"])
	if err != nil {
		return domain.SaleLine{}, status.Errorf(codes.InvalidArgument, "lines[%d].unit_price: %v", idx, err)
	}
	sequence, err := r.integer("sequence")
	if err != nil {
		return domain.SaleLine{}, err
	}

	line := domain.SaleLine{
		ID:          r.str("id"),
		Type:        domain.LineType(r.str("type")),
		ProductID:   r.str("product_id"),
		Description: r.str("description"),
		Quantity:    quantity,
		Unit:        r.str("unit"),
		UnitPrice:   unitPrice,
		Sequence:    sequence,
	}
	if taxes := r.fields["taxes"].GetListValue(); taxes != nil {
		line.Taxes = make([]string, 0, len(taxes.GetValues()))
		for _, tax := range taxes.GetValues() {
			line.Taxes = append(line.Taxes, valueString(tax))
		}
	}
	return line, nil
}

// saleDraft декодирует шапку и строки заказа.
func (r request) saleDraft() (domain.Sale, error) {
	lines, err := r.lines()
	if err != nil {
		return domain.Sale{}, err
	}
	return domain.Sale{
		ID:           r.str("sale_id"),
		Reference:    r.str("reference"),
		CompanyID:    strings.TrimSpace(r.str("company_id")),
		PartyID:      strings.TrimSpace(r.str("party_id")),
		CurrencyCode: strings.TrimSpace(r.str("currency")),
		CarrierID:    strings.TrimSpace(r.str("carrier_id")),
		Lines:        lines,
	}, nil
}

// decimalValue принимает десятичную строку или число.
func decimalValue(v *structpb.Value) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		raw := strings.TrimSpace(kind.StringValue)
		if raw == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(raw)
	case *structpb.Value_NumberValue:
		if math.IsNaN(kind.NumberValue) || math.IsInf(kind.NumberValue, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(kind.NumberValue), nil
	case *structpb.Value_NullValue:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported decimal value")
	}
}

func valueString(v *structpb.Value) string {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	default:
		return ""
	}
}

func saleFields(sale domain.Sale) map[string]any {
	lines := make([]any, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, lineFields(line))
	}

	return map[string]any{
		"id":                sale.ID,
		"reference":         sale.Reference,
		"company_id":        sale.CompanyID,
		"party_id":          sale.PartyID,
		"currency":          sale.CurrencyCode,
		"carrier_id":        sale.CarrierID,
		"state":             string(sale.State),
		"lines":             lines,
		"total":             sale.TotalAmount().String(),
		"version":           sale.Version,
		"created_at":        formatTime(sale.CreatedAt),
		"updated_at":        formatTime(sale.UpdatedAt),
		"shipping_estimate": costFields(sale.ShippingEstimate),
	}
}

func lineFields(line domain.SaleLine) map[string]any {
	taxes := make([]any, 0, len(line.Taxes))
	for _, tax := range line.Taxes {
		taxes = append(taxes, tax)
	}

	fields := map[string]any{
		"id":          line.ID,
		"type":        string(line.Type),
		"product_id":  line.ProductID,
		"description": line.Description,
		"quantity":    line.Quantity.String(),
		"unit":        line.Unit,
		"unit_price":  line.UnitPrice.String(),
		"amount":      line.Amount.String(),
		"taxes":       taxes,
		"sequence":    line.Sequence,
	}
	if line.ShipmentCost.Valid {
		fields["shipment_cost"] = line.ShipmentCost.Decimal.String()
	}
	return fields
}

func shipmentFields(shipment domain.Shipment) map[string]any {
	moves := make([]any, 0, len(shipment.Moves))
	for _, move := range shipment.Moves {
		moves = append(moves, map[string]any{
			"id":         move.ID,
			"product_id": move.ProductID,
			"quantity":   move.Quantity.String(),
		})
	}

	return map[string]any{
		"id":          shipment.ID,
		"sale_id":     shipment.SaleID,
		"company_id":  shipment.CompanyID,
		"customer_id": shipment.CustomerID,
		"carrier_id":  shipment.CarrierID,
		"state":       string(shipment.State),
		"moves":       moves,
		"cost":        costFields(domain.ShippingCost{Amount: shipment.Cost, Currency: shipment.CostCurrency}),
		"created_at":  formatTime(shipment.CreatedAt),
	}
}

func costFields(cost domain.ShippingCost) map[string]any {
	return map[string]any{
		"amount":   cost.Amount.String(),
		"currency": cost.Currency,
	}
}

func rateFields(rate domain.ShippingRate) map[string]any {
	metadata := make(map[string]any, len(rate.Metadata))
	for key, value := range rate.Metadata {
		metadata[key] = value
	}
	return map[string]any{
		"method":     rate.Method,
		"carrier_id": rate.CarrierID,
		"rate":       rate.Rate.String(),
		"currency":   rate.Currency,
		"metadata":   metadata,
	}
}

func historyFields(entries []domain.HistoryEntry) []any {
	result := make([]any, 0, len(entries))
	for _, entry := range entries {
		fields := map[string]any{
			"seq":      strconv.FormatInt(entry.Seq, 10),
			"event":    entry.Event,
			"occurred": formatTime(entry.Occurred),
		}
		if entry.Transition() {
			fields["from"] = string(entry.From)
			fields["to"] = string(entry.To)
		}
		if entry.Reason != "" {
			fields["reason"] = entry.Reason
		}
		result = append(result, fields)
	}
	return result
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
