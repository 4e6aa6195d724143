package server

import (
	"LiqWatch/internal/query"
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "liqwatch.v1.RiskService"

// RiskService is the API surface served over gRPC and HTTP.
type RiskService interface {
	GetSnapshot(ctx context.Context, req *query.GetSnapshotRequest) (*query.SnapshotResponse, error)
	ListPositions(ctx context.Context, req *query.ListPositionsRequest) (*query.ListPositionsResponse, error)
	GetPosition(ctx context.Context, req *query.GetPositionRequest) (*query.PositionResponse, error)
	GetRiskCurve(ctx context.Context, req *query.GetRiskCurveRequest) (*query.RiskCurveResponse, error)
	SimulatePrice(ctx context.Context, req *query.SimulatePriceRequest) (*query.SimulatePriceResponse, error)
	AddAddress(ctx context.Context, req *query.AddAddressRequest) (*query.AddressResponse, error)
	RemoveAddress(ctx context.Context, req *query.RemoveAddressRequest) (*query.RemoveAddressResponse, error)
	ListAddresses(ctx context.Context, req *query.ListAddressesRequest) (*query.ListAddressesResponse, error)
	ListTransactions(ctx context.Context, req *query.ListTransactionsRequest) (*query.ListTransactionsResponse, error)
	GetHistory(ctx context.Context, req *query.GetHistoryRequest) (*query.GetHistoryResponse, error)
}

var riskServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiskService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetSnapshot", RiskService.GetSnapshot),
		unary("ListPositions", RiskService.ListPositions),
		unary("GetPosition", RiskService.GetPosition),
		unary("GetRiskCurve", RiskService.GetRiskCurve),
		unary("SimulatePrice", RiskService.SimulatePrice),
		unary("AddAddress", RiskService.AddAddress),
		unary("RemoveAddress", RiskService.RemoveAddress),
		unary("ListAddresses", RiskService.ListAddresses),
		unary("ListTransactions", RiskService.ListTransactions),
		unary("GetHistory", RiskService.GetHistory),
	},
	Streams: []grpc.StreamDesc{},
}

// unary builds a method descriptor that decodes Req, runs the interceptor
// chain and maps domain errors to gRPC statuses.
func unary[Req, Resp any](method string, call func(RiskService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				resp, err := call(srv.(RiskService), ctx, req.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client calls a remote RiskService with the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req interface{}) (*Resp, error) {
	out := new(Resp)
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSnapshot(ctx context.Context, req *query.GetSnapshotRequest) (*query.SnapshotResponse, error) {
	return invoke[query.SnapshotResponse](ctx, c, "GetSnapshot", req)
}

func (c *Client) ListPositions(ctx context.Context, req *query.ListPositionsRequest) (*query.ListPositionsResponse, error) {
	return invoke[query.ListPositionsResponse](ctx, c, "ListPositions", req)
}

func (c *Client) GetPosition(ctx context.Context, req *query.GetPositionRequest) (*query.PositionResponse, error) {
	return invoke[query.PositionResponse](ctx, c, "GetPosition", req)
}

func (c *Client) GetRiskCurve(ctx context.Context, req *query.GetRiskCurveRequest) (*query.RiskCurveResponse, error) {
	return invoke[query.RiskCurveResponse](ctx, c, "GetRiskCurve", req)
}

func (c *Client) SimulatePrice(ctx context.Context, req *query.SimulatePriceRequest) (*query.SimulatePriceResponse, error) {
	return invoke[query.SimulatePriceResponse](ctx, c, "SimulatePrice", req)
}

func (c *Client) AddAddress(ctx context.Context, req *query.AddAddressRequest) (*query.AddressResponse, error) {
	return invoke[query.AddressResponse](ctx, c, "AddAddress", req)
}

func (c *Client) RemoveAddress(ctx context.Context, req *query.RemoveAddressRequest) (*query.RemoveAddressResponse, error) {
	return invoke[query.RemoveAddressResponse](ctx, c, "RemoveAddress", req)
}

func (c *Client) ListAddresses(ctx context.Context, req *query.ListAddressesRequest) (*query.ListAddressesResponse, error) {
	return invoke[query.ListAddressesResponse](ctx, c, "ListAddresses", req)
}

func (c *Client) ListTransactions(ctx context.Context, req *query.ListTransactionsRequest) (*query.ListTransactionsResponse, error) {
	return invoke[query.ListTransactionsResponse](ctx, c, "ListTransactions", req)
}

func (c *Client) GetHistory(ctx context.Context, req *query.GetHistoryRequest) (*query.GetHistoryResponse, error) {
	return invoke[query.GetHistoryResponse](ctx, c, "GetHistory", req)
}
