// Package dupesweepv1 defines the dupesweepd gRPC service. Requests and
// responses travel as google.protobuf.Struct values built from the Go
// message types below; the full report travels as JSON bytes so 64-bit
// hashes survive the trip.
package dupesweepv1

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "dupesweep.v1.Daemon"

// Full method names.
const (
	MethodScan          = "/" + ServiceName + "/Scan"
	MethodStatus        = "/" + ServiceName + "/Status"
	MethodReport        = "/" + ServiceName + "/Report"
	MethodWatchProgress = "/" + ServiceName + "/WatchProgress"
)

// ScanRequest asks the daemon to scan roots. Empty roots rescan the
// configured roots.
type ScanRequest struct {
	Roots []string `json:"roots"`
}

// ScanResponse reports whether a scan was started.
type ScanResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// DaemonStatus is daemon health plus the state of the latest scan.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	MemoryBytes   uint64             `json:"memory_bytes"`
	Roots         []string           `json:"roots"`
	Scanning      bool               `json:"scanning"`
	Progress      types.ScanProgress `json:"progress"`
	LastScan      time.Time          `json:"last_scan,omitempty"`
	Sets          int                `json:"sets"`
	Reclaimable   uint64             `json:"reclaimable"`
	LastError     string             `json:"last_error,omitempty"`
}

// DaemonServer is the server API for the Daemon service.
type DaemonServer interface {
	Scan(context.Context, *ScanRequest) (*ScanResponse, error)
	Status(context.Context) (*DaemonStatus, error)
	Report(context.Context) (*types.Report, error)
	WatchProgress(ctx context.Context, send func(types.ScanProgress) error) error
}

// ToStruct converts a JSON-tagged message into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct fills a JSON-tagged message from a Struct.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// RegisterDaemonServer registers srv with s.
func RegisterDaemonServer(s grpc.ServiceRegistrar, srv DaemonServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func scanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var sr ScanRequest
		if err := FromStruct(req.(*structpb.Struct), &sr); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode scan request: %v", err)
		}
		resp, err := srv.(DaemonServer).Scan(ctx, &sr)
		if err != nil {
			return nil, err
		}
		return ToStruct(resp)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodScan}, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		resp, err := srv.(DaemonServer).Status(ctx)
		if err != nil {
			return nil, err
		}
		return ToStruct(resp)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodStatus}, handler)
}

func reportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, _ any) (any, error) {
		report, err := srv.(DaemonServer).Report(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(report)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode report: %v", err)
		}
		return wrapperspb.Bytes(data), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodReport}, handler)
}

func watchProgressHandler(srv any, stream grpc.ServerStream) error {
	if err := stream.RecvMsg(new(emptypb.Empty)); err != nil {
		return err
	}
	return srv.(DaemonServer).WatchProgress(stream.Context(), func(p types.ScanProgress) error {
		msg, err := ToStruct(p)
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	})
}

// ServiceDesc is the grpc.ServiceDesc for the Daemon service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DaemonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Scan", Handler: scanHandler},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Report", Handler: reportHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchProgress", Handler: watchProgressHandler, ServerStreams: true},
	},
	Metadata: "dupesweep/v1/daemon.proto",
}

// DaemonClient is the client API for the Daemon service.
type DaemonClient struct {
	cc grpc.ClientConnInterface
}

// NewDaemonClient wraps a connection.
func NewDaemonClient(cc grpc.ClientConnInterface) *DaemonClient {
	return &DaemonClient{cc: cc}
}

// Scan starts a scan.
func (c *DaemonClient) Scan(ctx context.Context, req *ScanRequest, opts ...grpc.CallOption) (*ScanResponse, error) {
	in, err := ToStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodScan, in, out, opts...); err != nil {
		return nil, err
	}
	var resp ScanResponse
	if err := FromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode scan response: %w", err)
	}
	return &resp, nil
}

// Status returns daemon status.
func (c *DaemonClient) Status(ctx context.Context, opts ...grpc.CallOption) (*DaemonStatus, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var resp DaemonStatus
	if err := FromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &resp, nil
}

// Report returns the latest report.
func (c *DaemonClient) Report(ctx context.Context, opts ...grpc.CallOption) (*types.Report, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, MethodReport, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var report types.Report
	if err := json.Unmarshal(out.GetValue(), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// WatchProgress streams progress updates until the stream ends.
func (c *DaemonClient) WatchProgress(ctx context.Context, opts ...grpc.CallOption) (func() (types.ScanProgress, error), error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodWatchProgress, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return func() (types.ScanProgress, error) {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return types.ScanProgress{}, err
		}
		var p types.ScanProgress
		if err := FromStruct(msg, &p); err != nil {
			return types.ScanProgress{}, fmt.Errorf("decode progress: %w", err)
		}
		return p, nil
	}, nil
}
