package indicators

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"dca-core/internal/market"
)

// ComputeMethod is the full gRPC method name served by the indicator worker.
const ComputeMethod = "/indicators.IndicatorService/Compute"

// JSONCodec carries indicator requests as JSON over gRPC so the worker needs no generated stubs.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// ComputeRequest is sent to the worker.
type ComputeRequest struct {
	Candles []market.Candle `json:"candles"`
}

// ComputeResponse maps series name to one value per candle; null marks an undefined row.
type ComputeResponse struct {
	Series map[string][]*float64 `json:"series"`
}

// RemoteBridge delegates indicator computation to an external worker.
type RemoteBridge struct {
	conn    *grpc.ClientConn
	Timeout time.Duration
}

func NewRemoteBridge(addr string) (*RemoteBridge, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})),
	)
	if err != nil {
		return nil, err
	}
	return &RemoteBridge{conn: conn, Timeout: 2 * time.Second}, nil
}

func (r *RemoteBridge) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *RemoteBridge) Compute(ctx context.Context, window []market.Candle) (Snapshot, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var resp ComputeResponse
	if err := r.conn.Invoke(ctx, ComputeMethod, &ComputeRequest{Candles: window}, &resp); err != nil {
		return Snapshot{}, fmt.Errorf("indicator worker: %w", err)
	}

	snap := Snapshot{Len: len(window), Series: make(map[string][]float64, len(resp.Series))}
	for name, vals := range resp.Series {
		if len(vals) != len(window) {
			return Snapshot{}, fmt.Errorf("indicator worker: series %q has %d rows, want %d", name, len(vals), len(window))
		}
		out := make([]float64, len(vals))
		for i, v := range vals {
			if v == nil {
				out[i] = math.NaN()
			} else {
				out[i] = *v
			}
		}
		snap.Series[name] = out
	}
	return snap, nil
}
