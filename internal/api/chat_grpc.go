package api

import (
	"context"

	"google.golang.org/grpc"
)

const ChatServiceName = "muzz.chat.ChatService"

const (
	ChatService_ListChannels_FullMethodName     = "/" + ChatServiceName + "/ListChannels"
	ChatService_SendMessage_FullMethodName      = "/" + ChatServiceName + "/SendMessage"
	ChatService_ListMessages_FullMethodName     = "/" + ChatServiceName + "/ListMessages"
	ChatService_MarkRead_FullMethodName         = "/" + ChatServiceName + "/MarkRead"
	ChatService_OpenChannel_FullMethodName      = "/" + ChatServiceName + "/OpenChannel"
	ChatService_CloseChannel_FullMethodName     = "/" + ChatServiceName + "/CloseChannel"
	ChatService_Heartbeat_FullMethodName        = "/" + ChatServiceName + "/Heartbeat"
	ChatService_GetPresence_FullMethodName      = "/" + ChatServiceName + "/GetPresence"
	ChatService_UploadAttachment_FullMethodName = "/" + ChatServiceName + "/UploadAttachment"
	ChatService_Subscribe_FullMethodName        = "/" + ChatServiceName + "/Subscribe"
)

// ChatServiceServer is the server API for ChatService.
type ChatServiceServer interface {
	ListChannels(context.Context, *ListChannelsRequest) (*ListChannelsResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	OpenChannel(context.Context, *PresenceRequest) (*PresenceResponse, error)
	CloseChannel(context.Context, *PresenceRequest) (*PresenceResponse, error)
	Heartbeat(context.Context, *PresenceRequest) (*PresenceResponse, error)
	GetPresence(context.Context, *PresenceRequest) (*GetPresenceResponse, error)
	UploadAttachment(context.Context, *UploadAttachmentRequest) (*UploadAttachmentResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[ChannelEvent]) error
}

var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(ChatServiceName, "ListChannels", ChatServiceServer.ListChannels),
		unaryMethod(ChatServiceName, "SendMessage", ChatServiceServer.SendMessage),
		unaryMethod(ChatServiceName, "ListMessages", ChatServiceServer.ListMessages),
		unaryMethod(ChatServiceName, "MarkRead", ChatServiceServer.MarkRead),
		unaryMethod(ChatServiceName, "OpenChannel", ChatServiceServer.OpenChannel),
		unaryMethod(ChatServiceName, "CloseChannel", ChatServiceServer.CloseChannel),
		unaryMethod(ChatServiceName, "Heartbeat", ChatServiceServer.Heartbeat),
		unaryMethod(ChatServiceName, "GetPresence", ChatServiceServer.GetPresence),
		unaryMethod(ChatServiceName, "UploadAttachment", ChatServiceServer.UploadAttachment),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       chatSubscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "muzz/chat.json",
}

func chatSubscribeHandler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ChatServiceServer).Subscribe(m, &grpc.GenericServerStream[SubscribeRequest, ChannelEvent]{ServerStream: stream})
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

// ChatServiceClient calls ChatService over the JSON codec.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func (c *ChatServiceClient) ListChannels(ctx context.Context, in *ListChannelsRequest, opts ...grpc.CallOption) (*ListChannelsResponse, error) {
	return invoke[ListChannelsResponse](ctx, c.cc, ChatService_ListChannels_FullMethodName, in, opts)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, ChatService_SendMessage_FullMethodName, in, opts)
}

func (c *ChatServiceClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, ChatService_ListMessages_FullMethodName, in, opts)
}

func (c *ChatServiceClient) MarkRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c.cc, ChatService_MarkRead_FullMethodName, in, opts)
}

func (c *ChatServiceClient) OpenChannel(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c.cc, ChatService_OpenChannel_FullMethodName, in, opts)
}

func (c *ChatServiceClient) CloseChannel(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c.cc, ChatService_CloseChannel_FullMethodName, in, opts)
}

func (c *ChatServiceClient) Heartbeat(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c.cc, ChatService_Heartbeat_FullMethodName, in, opts)
}

func (c *ChatServiceClient) GetPresence(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*GetPresenceResponse, error) {
	return invoke[GetPresenceResponse](ctx, c.cc, ChatService_GetPresence_FullMethodName, in, opts)
}

func (c *ChatServiceClient) UploadAttachment(ctx context.Context, in *UploadAttachmentRequest, opts ...grpc.CallOption) (*UploadAttachmentResponse, error) {
	return invoke[UploadAttachmentResponse](ctx, c.cc, ChatService_UploadAttachment_FullMethodName, in, opts)
}

// Subscribe opens a server stream of channel events. The stream ends when
// ctx is cancelled or the server drops a slow subscriber.
func (c *ChatServiceClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ChannelEvent], error) {
	stream, err := c.cc.NewStream(ctx, &ChatService_ServiceDesc.Streams[0], ChatService_Subscribe_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeRequest, ChannelEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
