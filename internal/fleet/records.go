package fleet

// AccountRecord is the account payload returned for the API key.
type AccountRecord struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// HubRecord is a hub as listed by the API. Hubs are keyed by thing name.
type HubRecord struct {
	ThingName string     `json:"thingName"`
	Info      HubInfo    `json:"info"`
	Network   HubNetwork `json:"network"`
}

// HubInfo holds the identity block of a hub record.
type HubInfo struct {
	FriendlyName string     `json:"friendlyName"`
	Model        string     `json:"model"`
	Version      HubVersion `json:"version"`
}

// HubVersion holds the versions reported by a hub. SystemVersion is the
// firmware.
type HubVersion struct {
	SystemVersion   string `json:"systemVersion"`
	AppVersion      string `json:"appVersion"`
	HardwareVersion string `json:"hardwareVersion"`
}

// HubNetwork holds the network status of a hub. Connected is nil when the
// API omitted the field.
type HubNetwork struct {
	Connected *bool `json:"connected"`
}

// NodeRecord is a display node as listed by the API. ThingName names the
// hub the node reports through.
type NodeRecord struct {
	NodeID    string `json:"nodeId"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	ThingName string `json:"thingName"`
	Onlined   *bool  `json:"onlined"`
}
