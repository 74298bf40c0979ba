package fleet

import (
	"context"
	"sync"
)

func boolPtr(b bool) *bool { return &b }

// fakeAPI is an in-memory API with per-call error injection.
type fakeAPI struct {
	mu sync.Mutex

	account *AccountRecord
	hubs    []HubRecord
	nodes   []NodeRecord

	accountErr error
	listHubErr error
	listNodErr error
	getErr     map[string]error
	renderErr  error

	renders []RenderCommand
	calls   map[string]int

	// block, when set, is waited on by every call before it answers.
	block chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		account: &AccountRecord{UserID: "u-1", Email: "owner@example.com"},
		getErr:  map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeAPI) enter(op string) {
	f.mu.Lock()
	f.calls[op]++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (f *fakeAPI) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) setHubConnected(id string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.hubs {
		if f.hubs[i].ThingName == id {
			f.hubs[i].Network.Connected = boolPtr(v)
		}
	}
}

func (f *fakeAPI) setNodeOnline(id string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.nodes {
		if f.nodes[i].NodeID == id {
			f.nodes[i].Onlined = boolPtr(v)
		}
	}
}

func (f *fakeAPI) setGetErr(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr[id] = err
}

func (f *fakeAPI) AccountInfo(context.Context) (*AccountRecord, error) {
	f.enter("account")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	rec := *f.account
	return &rec, nil
}

func (f *fakeAPI) ListHubs(context.Context) ([]HubRecord, error) {
	f.enter("listHubs")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listHubErr != nil {
		return nil, f.listHubErr
	}
	return append([]HubRecord(nil), f.hubs...), nil
}

func (f *fakeAPI) GetHub(_ context.Context, id string) (*HubRecord, error) {
	f.enter("getHub")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	for _, h := range f.hubs {
		if h.ThingName == id {
			rec := h
			return &rec, nil
		}
	}
	return nil, &APIError{Kind: ErrNotFound, Op: "GET /devices/{id}", StatusCode: 404}
}

func (f *fakeAPI) ListNodes(context.Context) ([]NodeRecord, error) {
	f.enter("listNodes")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listNodErr != nil {
		return nil, f.listNodErr
	}
	return append([]NodeRecord(nil), f.nodes...), nil
}

func (f *fakeAPI) GetNode(_ context.Context, id string) (*NodeRecord, error) {
	f.enter("getNode")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	for _, n := range f.nodes {
		if n.NodeID == id {
			rec := n
			return &rec, nil
		}
	}
	return nil, &APIError{Kind: ErrNotFound, Op: "GET /nodes/{id}", StatusCode: 404}
}

func (f *fakeAPI) RenderOnNode(_ context.Context, nodeID, contents string) error {
	f.enter("render")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renderErr != nil {
		return f.renderErr
	}
	f.renders = append(f.renders, RenderCommand{TargetNodeID: nodeID, Contents: contents})
	return nil
}

// inlineRunner runs work on the calling goroutine.
type inlineRunner struct{}

func (inlineRunner) Do(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// sampleFleet is one hub with two nodes plus an orphan.
func sampleFleet() *fakeAPI {
	f := newFakeAPI()
	f.hubs = []HubRecord{{
		ThingName: "hub-1",
		Info: HubInfo{
			FriendlyName: "Hallway Hub",
			Model:        "mrd",
			Version:      HubVersion{SystemVersion: "1.2.0", AppVersion: "3.4.5", HardwareVersion: "B"},
		},
		Network: HubNetwork{Connected: boolPtr(true)},
	}}
	f.nodes = []NodeRecord{
		{NodeID: "node-1", Name: "Kitchen", Model: "D29AB", ThingName: "hub-1", Onlined: boolPtr(true)},
		{NodeID: "node-2", Name: "Office", Model: "D75X", ThingName: "hub-1", Onlined: boolPtr(false)},
		{NodeID: "node-3", Name: "Garage", Model: "Q10", ThingName: "hub-gone", Onlined: boolPtr(true)},
	}
	return f
}
