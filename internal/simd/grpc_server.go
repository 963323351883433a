package simd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// SimulationServiceServer is the run daemon's gRPC surface. Messages are
// google.protobuf.Struct documents shaped like the HTTP JSON bodies.
type SimulationServiceServer interface {
	CreateRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRunResults(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamRunEvents(*structpb.Struct, RunEventStream) error
}

// RunEventStream is the server side of StreamRunEvents
type RunEventStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

const serviceName = "ptasim.v1.SimulationService"

type unaryCall func(SimulationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SimulationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SimulationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type runEventStream struct {
	grpc.ServerStream
}

func (s *runEventStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func streamRunEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SimulationServiceServer).StreamRunEvents(in, &runEventStream{stream})
}

// SimulationServiceDesc describes ptasim.v1.SimulationService for grpc.Server
var SimulationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SimulationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRun", Handler: unaryHandler("CreateRun", SimulationServiceServer.CreateRun)},
		{MethodName: "StartRun", Handler: unaryHandler("StartRun", SimulationServiceServer.StartRun)},
		{MethodName: "StopRun", Handler: unaryHandler("StopRun", SimulationServiceServer.StopRun)},
		{MethodName: "GetRun", Handler: unaryHandler("GetRun", SimulationServiceServer.GetRun)},
		{MethodName: "ListRuns", Handler: unaryHandler("ListRuns", SimulationServiceServer.ListRuns)},
		{MethodName: "GetRunResults", Handler: unaryHandler("GetRunResults", SimulationServiceServer.GetRunResults)},
		{MethodName: "Simulate", Handler: unaryHandler("Simulate", SimulationServiceServer.Simulate)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamRunEvents", Handler: streamRunEventsHandler, ServerStreams: true},
	},
	Metadata: "ptasim/v1/simulation.proto",
}

// RegisterSimulationServiceServer registers srv on s
func RegisterSimulationServiceServer(s grpc.ServiceRegistrar, srv SimulationServiceServer) {
	s.RegisterService(&SimulationServiceDesc, srv)
}

// SimulationGRPCServer implements SimulationServiceServer using a RunStore backend.
type SimulationGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor

	// pollInterval paces StreamRunEvents
	pollInterval time.Duration
}

// NewSimulationGRPCServer creates a new SimulationGRPCServer with the provided RunStore and RunExecutor.
func NewSimulationGRPCServer(store *RunStore, executor *RunExecutor) *SimulationGRPCServer {
	return &SimulationGRPCServer{
		store:        store,
		Executor:     executor,
		pollInterval: 250 * time.Millisecond,
	}
}

func (s *SimulationGRPCServer) CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateRunRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	rec, err := createRun(s.store, s.Executor, &in)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"run": rec.Run})
}

func (s *SimulationGRPCServer) StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}

	updated, err := s.Executor.Start(runID)
	if err != nil {
		return nil, grpcError(err)
	}

	logger.Info("run started (executor)", "run_id", runID)
	return toStruct(map[string]any{"run": updated.Run})
}

func (s *SimulationGRPCServer) StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}

	updated, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run cancelled", "run_id", runID)
	return toStruct(map[string]any{"run": updated.Run})
}

func (s *SimulationGRPCServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return toStruct(map[string]any{"run": rec.Run})
}

func (s *SimulationGRPCServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
		Status string `json:"status"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	var filter models.RunStatus
	if in.Status != "" {
		if filter = models.ParseRunStatus(in.Status); filter == "" {
			return nil, status.Errorf(codes.InvalidArgument, "unknown status: %s", in.Status)
		}
	}

	recs := s.store.ListFiltered(in.Limit, in.Offset, filter)
	runs := make([]*Run, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, rec.Run)
	}
	return toStruct(map[string]any{"runs": runs})
}

func (s *SimulationGRPCServer) GetRunResults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID, err := requireRunID(req)
	if err != nil {
		return nil, err
	}
	view, err := runResults(s.store, runID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (s *SimulationGRPCServer) Simulate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in SimulateRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	scenario, err := resolveScenario(in.ScenarioYAML, in.Scenario)
	if err != nil {
		return nil, grpcError(err)
	}

	eng := newEngine(scenario, s.Executor.Workers(), logger.Default)
	out, err := simulation.Simulate(ctx, eng, scenario.ToInput())
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(newResultsView(out))
}

// StreamRunEvents sends a status_changed event for every status transition and
// a progress event whenever more pairs finish, ending once the run is terminal.
func (s *SimulationGRPCServer) StreamRunEvents(req *structpb.Struct, stream RunEventStream) error {
	runID, err := requireRunID(req)
	if err != nil {
		return err
	}

	rec, ok := s.store.Get(runID)
	if !ok {
		return status.Error(codes.NotFound, "run not found")
	}

	var previous models.RunStatus
	lastDone := -1
	send := func(rec *RunRecord) error {
		if rec.Run.Status != previous {
			if err := sendEvent(stream, runID, "status_changed", map[string]any{
				"previous": string(previous),
				"current":  string(rec.Run.Status),
			}); err != nil {
				return err
			}
			previous = rec.Run.Status
		}
		if rec.Run.PairsDone != lastDone {
			if err := sendEvent(stream, runID, "progress", map[string]any{
				"pairs_done":  rec.Run.PairsDone,
				"pairs_total": rec.Run.PairsTotal,
			}); err != nil {
				return err
			}
			lastDone = rec.Run.PairsDone
		}
		return nil
	}

	if err := send(rec); err != nil {
		return err
	}
	if rec.Run.Status.IsTerminal() {
		return nil
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-ticker.C:
			rec, ok := s.store.Get(runID)
			if !ok {
				return status.Error(codes.NotFound, "run not found")
			}
			if err := send(rec); err != nil {
				return err
			}
			if rec.Run.Status.IsTerminal() {
				return nil
			}
		}
	}
}

func sendEvent(stream RunEventStream, runID, kind string, data map[string]any) error {
	ev, err := toStruct(map[string]any{
		"at_unix_ms": time.Now().UTC().UnixMilli(),
		"run_id":     runID,
		"event":      kind,
		"data":       data,
	})
	if err != nil {
		return err
	}
	return stream.Send(ev)
}

func requireRunID(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "run_id is required")
	}
	v, ok := req.GetFields()["run_id"]
	if !ok || v.GetStringValue() == "" {
		return "", status.Error(codes.InvalidArgument, "run_id is required")
	}
	return v.GetStringValue(), nil
}

// fromStruct decodes a Struct into v through its JSON form. Unknown fields are
// rejected, matching the HTTP handlers.
func fromStruct(req *structpb.Struct, v any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	data, err := req.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// toStruct encodes v into a Struct through its JSON form
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// grpcError maps service errors to gRPC status errors
func grpcError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrRunIDMissing), errors.Is(err, models.ErrInvalidParameter):
		code = codes.InvalidArgument
	case errors.Is(err, ErrRunNotFound):
		code = codes.NotFound
	case errors.Is(err, ErrRunExists):
		code = codes.AlreadyExists
	case errors.Is(err, ErrRunTerminal), errors.Is(err, ErrResultsNotReady):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// SimulationServiceClient is a client for ptasim.v1.SimulationService
type SimulationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSimulationServiceClient(cc grpc.ClientConnInterface) *SimulationServiceClient {
	return &SimulationServiceClient{cc: cc}
}

// Call invokes a unary method by name, e.g. "CreateRun"
func (c *SimulationServiceClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// StreamRunEvents opens the event stream of a run. recv returns io.EOF once the
// run is terminal.
func (c *SimulationServiceClient) StreamRunEvents(ctx context.Context, runID string, opts ...grpc.CallOption) (recv func() (map[string]any, error), err error) {
	stream, err := c.cc.NewStream(ctx, &SimulationServiceDesc.Streams[0], "/"+serviceName+"/StreamRunEvents", opts...)
	if err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(map[string]any{"run_id": runID})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return func() (map[string]any, error) {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			return nil, err
		}
		return out.AsMap(), nil
	}, nil
}
