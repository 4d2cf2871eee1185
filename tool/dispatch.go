package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sweetpotato0/finsight/identity"
	"github.com/sweetpotato0/finsight/message"
)

// errorResult is the error-shaped payload fed back to the model when a tool
// call cannot be completed. The model may retry with a different tool or
// query; an individual failure never aborts the run.
type errorResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func encodeError(err error) string {
	data, marshalErr := json.Marshal(errorResult{Success: false, Error: err.Error()})
	if marshalErr != nil {
		return `{"success":false,"error":"tool execution failed"}`
	}
	return string(data)
}

// Dispatch executes every tool call requested in one model turn and returns
// exactly one correlated tool result message per request, in request order.
// The calls are read-only and mutually independent, so they run concurrently.
// Handler errors and unknown tool names are converted into error payloads at
// this boundary; Dispatch itself never fails.
func (r *Registry) Dispatch(ctx context.Context, scope *identity.Scope, calls []message.ToolCall) []*message.Message {
	results := make([]*message.Message, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call message.ToolCall) {
			defer wg.Done()
			results[i] = message.NewToolResultMessage(call.ID, r.dispatchOne(ctx, scope, call))
		}(i, call)
	}
	wg.Wait()

	return results
}

func (r *Registry) dispatchOne(ctx context.Context, scope *identity.Scope, call message.ToolCall) (result string) {
	// Each call runs on its own goroutine, so a panicking handler must be
	// contained here or it takes down the process.
	defer func() {
		if rec := recover(); rec != nil {
			result = encodeError(fmt.Errorf("tool %s panicked: %v", call.Name, rec))
		}
	}()

	t, err := r.Get(call.Name)
	if err != nil {
		return encodeError(err)
	}

	out, err := t.Execute(ctx, scope, call.Args)
	if err != nil {
		return encodeError(err)
	}
	return out
}
