package api

import (
	"context"

	"google.golang.org/grpc"
)

const MatchingServiceName = "muzz.matching.MatchingService"

const (
	MatchingService_Discover_FullMethodName          = "/" + MatchingServiceName + "/Discover"
	MatchingService_CreateMatch_FullMethodName       = "/" + MatchingServiceName + "/CreateMatch"
	MatchingService_UpdateMatchStatus_FullMethodName = "/" + MatchingServiceName + "/UpdateMatchStatus"
	MatchingService_GetMatch_FullMethodName          = "/" + MatchingServiceName + "/GetMatch"
	MatchingService_ListMatches_FullMethodName       = "/" + MatchingServiceName + "/ListMatches"
)

// MatchingServiceServer is the server API for MatchingService.
type MatchingServiceServer interface {
	Discover(context.Context, *DiscoverRequest) (*DiscoverResponse, error)
	CreateMatch(context.Context, *CreateMatchRequest) (*CreateMatchResponse, error)
	UpdateMatchStatus(context.Context, *UpdateMatchStatusRequest) (*UpdateMatchStatusResponse, error)
	GetMatch(context.Context, *GetMatchRequest) (*GetMatchResponse, error)
	ListMatches(context.Context, *ListMatchesRequest) (*ListMatchesResponse, error)
}

var MatchingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: MatchingServiceName,
	HandlerType: (*MatchingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MatchingServiceName, "Discover", MatchingServiceServer.Discover),
		unaryMethod(MatchingServiceName, "CreateMatch", MatchingServiceServer.CreateMatch),
		unaryMethod(MatchingServiceName, "UpdateMatchStatus", MatchingServiceServer.UpdateMatchStatus),
		unaryMethod(MatchingServiceName, "GetMatch", MatchingServiceServer.GetMatch),
		unaryMethod(MatchingServiceName, "ListMatches", MatchingServiceServer.ListMatches),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "muzz/matching.json",
}

func RegisterMatchingServiceServer(s grpc.ServiceRegistrar, srv MatchingServiceServer) {
	s.RegisterService(&MatchingService_ServiceDesc, srv)
}

// MatchingServiceClient calls MatchingService over the JSON codec.
type MatchingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchingServiceClient(cc grpc.ClientConnInterface) *MatchingServiceClient {
	return &MatchingServiceClient{cc: cc}
}

func (c *MatchingServiceClient) Discover(ctx context.Context, in *DiscoverRequest, opts ...grpc.CallOption) (*DiscoverResponse, error) {
	return invoke[DiscoverResponse](ctx, c.cc, MatchingService_Discover_FullMethodName, in, opts)
}

func (c *MatchingServiceClient) CreateMatch(ctx context.Context, in *CreateMatchRequest, opts ...grpc.CallOption) (*CreateMatchResponse, error) {
	return invoke[CreateMatchResponse](ctx, c.cc, MatchingService_CreateMatch_FullMethodName, in, opts)
}

func (c *MatchingServiceClient) UpdateMatchStatus(ctx context.Context, in *UpdateMatchStatusRequest, opts ...grpc.CallOption) (*UpdateMatchStatusResponse, error) {
	return invoke[UpdateMatchStatusResponse](ctx, c.cc, MatchingService_UpdateMatchStatus_FullMethodName, in, opts)
}

func (c *MatchingServiceClient) GetMatch(ctx context.Context, in *GetMatchRequest, opts ...grpc.CallOption) (*GetMatchResponse, error) {
	return invoke[GetMatchResponse](ctx, c.cc, MatchingService_GetMatch_FullMethodName, in, opts)
}

func (c *MatchingServiceClient) ListMatches(ctx context.Context, in *ListMatchesRequest, opts ...grpc.CallOption) (*ListMatchesResponse, error) {
	return invoke[ListMatchesResponse](ctx, c.cc, MatchingService_ListMatches_FullMethodName, in, opts)
}
