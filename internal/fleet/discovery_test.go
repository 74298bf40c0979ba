package fleet

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_BuildsDescriptors(t *testing.T) {
	api := sampleFleet()
	s := OpenSession(api, inlineRunner{})

	fl, err := Discover(context.Background(), s, nil)
	require.NoError(t, err)

	require.Len(t, fl.Hubs, 1)
	hub := fl.Hubs[0]
	assert.Equal(t, "hub-1", hub.ID)
	assert.Equal(t, "Hallway Hub", hub.FriendlyName)
	assert.Equal(t, "SyncSign Hub (mrd)", hub.Model)
	assert.Equal(t, "1.2.0+3.4.5", hub.SoftwareVersion())
	assert.Equal(t, "B", hub.HardwareVersion)

	require.Len(t, fl.Nodes, 3)
	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, []string{fl.Nodes[0].ID, fl.Nodes[1].ID, fl.Nodes[2].ID})
	assert.Equal(t, `SyncSign 2.9" Display (D29AB)`, fl.Nodes[0].Model)
	assert.Equal(t, "hub-1", fl.Nodes[0].ParentHubID)
	assert.Equal(t, `SyncSign 7.5" Display (D75X)`, fl.Nodes[1].Model)
}

func TestDiscover_Fleets(t *testing.T) {
	tests := []struct {
		name       string
		hubs       []HubRecord
		nodes      []NodeRecord
		hubModels  []string
		nodeModels []string
		parents    []string
		assets     int
	}{
		{
			name: "hub with two displays",
			hubs: []HubRecord{{ThingName: "hub1", Info: HubInfo{Model: "mrd"}}},
			nodes: []NodeRecord{
				{NodeID: "n1", Model: "D42AB", ThingName: "hub1"},
				{NodeID: "n2", Model: "D99ZZ", ThingName: "hub1"},
			},
			hubModels:  []string{"SyncSign Hub (mrd)"},
			nodeModels: []string{`SyncSign 4.2" Display (D42AB)`, "Unknown"},
			parents:    []string{"hub1", "hub1"},
			assets:     3,
		},
		{
			name:       "unknown hub model",
			hubs:       []HubRecord{{ThingName: "hub1", Info: HubInfo{Model: "mrd2"}}},
			hubModels:  []string{"Unknown"},
			nodeModels: []string{},
			parents:    []string{},
			assets:     1,
		},
		{
			name:       "display without its hub",
			nodes:      []NodeRecord{{NodeID: "n1", Model: "D29X", ThingName: "hub9"}},
			hubModels:  []string{},
			nodeModels: []string{`SyncSign 2.9" Display (D29X)`},
			parents:    []string{""},
			assets:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.hubs = tt.hubs
			api.nodes = tt.nodes

			fl, err := Discover(context.Background(), OpenSession(api, inlineRunner{}), nil)
			require.NoError(t, err)

			hubModels := []string{}
			for _, h := range fl.Hubs {
				hubModels = append(hubModels, h.Model)
			}
			nodeModels, parents := []string{}, []string{}
			for _, n := range fl.Nodes {
				nodeModels = append(nodeModels, n.Model)
				parents = append(parents, n.ParentHubID)
			}
			assert.Equal(t, tt.hubModels, hubModels)
			assert.Equal(t, tt.nodeModels, nodeModels)
			assert.Equal(t, tt.parents, parents)
			assert.Len(t, fl.Assets(), tt.assets)
		})
	}
}

func TestDiscover_HubVersionsFromVendorPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/key/" + testKey + "/devices":
			io.WriteString(w, `{"code":0,"data":[{"thingName":"hub1","info":{"friendlyName":"Hall","model":"mrd",
				"version":{"systemVersion":"1.0","appVersion":"2.0","hardwareVersion":"B"}},"network":{"connected":true}}]}`)
		case "/v2/key/" + testKey + "/nodes":
			io.WriteString(w, `{"code":0,"data":[]}`)
		default:
			http.NotFound(w, r)
		}
	})

	fl, err := Discover(context.Background(), OpenSession(c, inlineRunner{}), nil)
	require.NoError(t, err)
	require.Len(t, fl.Hubs, 1)
	assert.Equal(t, "1.0+2.0", fl.Hubs[0].SoftwareVersion())
	assert.Equal(t, "B", fl.Hubs[0].HardwareVersion)
}

func TestDiscover_OrphanNodeKeptWithoutParent(t *testing.T) {
	s := OpenSession(sampleFleet(), inlineRunner{})

	fl, err := Discover(context.Background(), s, nil)
	require.NoError(t, err)

	orphan := fl.Nodes[2]
	assert.Equal(t, "node-3", orphan.ID)
	assert.Empty(t, orphan.ParentHubID)
	assert.Equal(t, UnknownModel, orphan.Model)
}

func TestDiscover_EveryParentIsDiscovered(t *testing.T) {
	s := OpenSession(sampleFleet(), inlineRunner{})

	fl, err := Discover(context.Background(), s, nil)
	require.NoError(t, err)

	hubs := map[string]bool{}
	for _, h := range fl.Hubs {
		hubs[h.ID] = true
	}
	for _, n := range fl.Nodes {
		if n.ParentHubID != "" {
			assert.True(t, hubs[n.ParentHubID], "node %s links to undiscovered hub", n.ID)
		}
	}
}

func TestDiscover_ListFailureAborts(t *testing.T) {
	t.Run("hubs", func(t *testing.T) {
		api := sampleFleet()
		api.listHubErr = &APIError{Kind: ErrTransport, Op: "GET /devices"}

		fl, err := Discover(context.Background(), OpenSession(api, inlineRunner{}), nil)
		assert.Nil(t, fl)
		assert.ErrorIs(t, err, ErrTransport)
		assert.Zero(t, api.callCount("listNodes"))
	})

	t.Run("nodes", func(t *testing.T) {
		api := sampleFleet()
		api.listNodErr = &APIError{Kind: ErrMalformedResponse, Op: "GET /nodes"}

		fl, err := Discover(context.Background(), OpenSession(api, inlineRunner{}), nil)
		assert.Nil(t, fl)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestDiscover_SkipsBlankAndDuplicateIDs(t *testing.T) {
	api := sampleFleet()
	api.hubs = append(api.hubs, HubRecord{ThingName: ""}, HubRecord{ThingName: "hub-1"})
	api.nodes = append(api.nodes, NodeRecord{NodeID: "node-1", Name: "Copy"}, NodeRecord{})

	fl, err := Discover(context.Background(), OpenSession(api, inlineRunner{}), nil)
	require.NoError(t, err)
	assert.Len(t, fl.Hubs, 1)
	assert.Len(t, fl.Nodes, 3)
	assert.Equal(t, "Kitchen", fl.Nodes[0].Name)
}

func TestDiscover_NodeSharingHubIDSkipped(t *testing.T) {
	api := sampleFleet()
	api.nodes = append(api.nodes, NodeRecord{NodeID: "hub-1", Name: "Clash", Model: "D29A", ThingName: "hub-1", Onlined: boolPtr(true)})

	fl, err := Discover(context.Background(), OpenSession(api, inlineRunner{}), nil)
	require.NoError(t, err)
	assert.Len(t, fl.Nodes, 3)

	a, ok := fl.Asset("hub-1")
	require.True(t, ok)
	assert.Equal(t, AssetHub, a.Kind)
}

func TestDiscover_EmptyAccount(t *testing.T) {
	api := newFakeAPI()

	fl, err := Discover(context.Background(), OpenSession(api, inlineRunner{}), nil)
	require.NoError(t, err)
	assert.Empty(t, fl.Assets())
}

func TestFleet_AssetLookup(t *testing.T) {
	fl, err := Discover(context.Background(), OpenSession(sampleFleet(), inlineRunner{}), nil)
	require.NoError(t, err)

	a, ok := fl.Asset("hub-1")
	require.True(t, ok)
	assert.Equal(t, AssetHub, a.Kind)
	assert.Equal(t, "Hallway Hub", a.Name())

	a, ok = fl.Asset("node-2")
	require.True(t, ok)
	assert.Equal(t, AssetNode, a.Kind)
	assert.Equal(t, "Office", a.Name())

	_, ok = fl.Asset("missing")
	assert.False(t, ok)

	assert.Len(t, fl.Assets(), 4)
}
