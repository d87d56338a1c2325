// Package mock provides a test double for the llm.Gateway interface.
//
// Use Gateway in unit tests to verify the requests the orchestrator sends and
// to feed controlled responses without a live model backend. Responses are
// consumed from a script: each call to Generate or ContinueWithToolResults
// pops the next entry from Script, so a multi-iteration tool loop can be
// driven deterministically.
//
// Example:
//
//	gw := &mock.Gateway{
//	    Script: []*llm.Response{
//	        {ToolCalls: []types.ToolCall{{Name: "buscar_productos"}}, FinishReason: llm.FinishToolCalls},
//	        {Text: "Encontré 3 productos.", FinishReason: llm.FinishStop},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/jmvillota/orquesta/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	Req llm.GenerateRequest
}

// DocumentCall records a single invocation of GenerateFromDocuments.
type DocumentCall struct {
	Req llm.DocumentRequest
}

// ContinueCall records a single invocation of ContinueWithToolResults.
type ContinueCall struct {
	Req llm.ContinueRequest
}

// Gateway is a mock implementation of llm.Gateway.
// Set Err to make every method fail; otherwise responses are popped from
// Script in order (Generate and ContinueWithToolResults share the script,
// matching how a real conversation consumes model turns). When the script is
// exhausted, a plain stop response is returned.
type Gateway struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// Script is the ordered sequence of responses consumed by Generate and
	// ContinueWithToolResults.
	Script []*llm.Response

	// DocumentResponse is returned by GenerateFromDocuments.
	DocumentResponse *llm.Response

	// Err, if non-nil, is returned by every method.
	Err error

	// --- Call records (read after test) ---

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall

	// DocumentCalls records every invocation of GenerateFromDocuments in order.
	DocumentCalls []DocumentCall

	// ContinueCalls records every invocation of ContinueWithToolResults in order.
	ContinueCalls []ContinueCall

	next int
}

var _ llm.Gateway = (*Gateway)(nil)

// Generate records the call and pops the next scripted response.
func (g *Gateway) Generate(_ context.Context, req llm.GenerateRequest) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GenerateCalls = append(g.GenerateCalls, GenerateCall{Req: req})
	if g.Err != nil {
		return nil, g.Err
	}
	return g.pop(), nil
}

// GenerateFromDocuments records the call and returns DocumentResponse.
func (g *Gateway) GenerateFromDocuments(_ context.Context, req llm.DocumentRequest) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DocumentCalls = append(g.DocumentCalls, DocumentCall{Req: req})
	if g.Err != nil {
		return nil, g.Err
	}
	if g.DocumentResponse != nil {
		return g.DocumentResponse, nil
	}
	return &llm.Response{FinishReason: llm.FinishStop}, nil
}

// ContinueWithToolResults records the call and pops the next scripted response.
func (g *Gateway) ContinueWithToolResults(_ context.Context, req llm.ContinueRequest) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ContinueCalls = append(g.ContinueCalls, ContinueCall{Req: req})
	if g.Err != nil {
		return nil, g.Err
	}
	return g.pop(), nil
}

// pop returns the next scripted response, or a plain stop once exhausted.
// Caller must hold g.mu.
func (g *Gateway) pop() *llm.Response {
	if g.next >= len(g.Script) {
		return &llm.Response{FinishReason: llm.FinishStop}
	}
	resp := g.Script[g.next]
	g.next++
	return resp
}
