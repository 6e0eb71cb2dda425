package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName: полное имя gRPC-сервиса расчёта доставки.
const ServiceName = "carrierpricelist.v1.ShippingCostService"

// Имена методов сервиса.
const (
	MethodCreateSale           = "CreateSale"
	MethodGetSale              = "GetSale"
	MethodListSales            = "ListSales"
	MethodSetSaleLines         = "SetSaleLines"
	MethodQuoteSale            = "QuoteSale"
	MethodConfirmSale          = "ConfirmSale"
	MethodProcessSale          = "ProcessSale"
	MethodCancelSale           = "CancelSale"
	MethodEstimateShippingCost = "EstimateShippingCost"
	MethodGetShipmentCost      = "GetShipmentCost"
	MethodGetShippingRates     = "GetShippingRates"
)

// ShippingCostServer: серверная часть API. Запросы и ответы передаются
// как google.protobuf.Struct, поэтому сгенерированные стабы не нужны.
type ShippingCostServer interface {
	CreateSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSales(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetSaleLines(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QuoteSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelSale(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EstimateShippingCost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetShipmentCost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetShippingRates(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ShippingCostServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ShippingCostServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ShippingCostServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ShippingCostServiceDesc описывает сервис для grpc.Server.RegisterService.
var ShippingCostServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShippingCostServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCreateSale, ShippingCostServer.CreateSale),
		unaryMethod(MethodGetSale, ShippingCostServer.GetSale),
		unaryMethod(MethodListSales, ShippingCostServer.ListSales),
		unaryMethod(MethodSetSaleLines, ShippingCostServer.SetSaleLines),
		unaryMethod(MethodQuoteSale, ShippingCostServer.QuoteSale),
		unaryMethod(MethodConfirmSale, ShippingCostServer.ConfirmSale),
		unaryMethod(MethodProcessSale, ShippingCostServer.ProcessSale),
		unaryMethod(MethodCancelSale, ShippingCostServer.CancelSale),
		unaryMethod(MethodEstimateShippingCost, ShippingCostServer.EstimateShippingCost),
		unaryMethod(MethodGetShipmentCost, ShippingCostServer.GetShipmentCost),
		unaryMethod(MethodGetShippingRates, ShippingCostServer.GetShippingRates),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carrierpricelist/v1/shipping_cost.proto",
}

// RegisterShippingCostServer регистрирует реализацию на сервере.
func RegisterShippingCostServer(registrar grpc.ServiceRegistrar, srv ShippingCostServer) {
	registrar.RegisterService(&ShippingCostServiceDesc, srv)
}

// FullMethod возвращает полное имя метода вида /service/method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Client: клиент ShippingCostService поверх произвольного соединения.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создаёт клиента.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call вызывает метод name с запросом in.
func (c *Client) Call(ctx context.Context, name string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CallMap собирает запрос из map и вызывает метод.
func (c *Client) CallMap(ctx context.Context, name string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, name, in, opts...)
}
