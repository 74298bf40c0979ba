package entity

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
)

// Kind distinguishes hub entities from node entities.
type Kind string

const (
	KindHub  Kind = "hub"
	KindNode Kind = "node"
)

// Fixed presentation of every connectivity entity.
const (
	Manufacturer = "SyncSign"
	DeviceClass  = "connectivity"
	Category     = "diagnostic"
	Icon         = "mdi:wifi"
	NameSuffix   = " Connected"
)

// Entity is one connectivity sensor. Its ID is the asset id.
type Entity struct {
	ID          string `json:"id"`
	EntryID     string `json:"entry_id"`
	Kind        Kind   `json:"kind"`
	Name        string `json:"name"`
	DeviceClass string `json:"device_class"`
	Category    string `json:"entity_category"`
	Icon        string `json:"icon"`

	Device DeviceInfo `json:"device"`

	// In-memory state.
	IsOn           bool       `json:"is_on"`
	Available      bool       `json:"available"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceInfo describes the physical device behind an entity.
type DeviceInfo struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	ModelCode    string `json:"model_code,omitempty"`
	SWVersion    string `json:"sw_version,omitempty"`
	HWVersion    string `json:"hw_version,omitempty"`
	ViaDeviceID  string `json:"via_device,omitempty"`
}

// FromAsset builds the entity registered for a discovered asset.
func FromAsset(entryID string, a fleet.Asset) Entity {
	e := Entity{
		ID:          a.ID(),
		EntryID:     entryID,
		Name:        a.Name() + NameSuffix,
		DeviceClass: DeviceClass,
		Category:    Category,
		Icon:        Icon,
		Device: DeviceInfo{
			Name:         a.Name(),
			Manufacturer: Manufacturer,
			Model:        a.Model(),
		},
	}

	switch a.Kind {
	case fleet.AssetHub:
		e.Kind = KindHub
		e.Device.ModelCode = a.Hub.ModelCode
		e.Device.SWVersion = a.Hub.SoftwareVersion()
		e.Device.HWVersion = a.Hub.HardwareVersion
	case fleet.AssetNode:
		e.Kind = KindNode
		e.Device.ModelCode = a.Node.ModelCode
		e.Device.ViaDeviceID = a.Node.ParentHubID
	}
	return e
}

// Validate checks the fields the store requires.
func (e *Entity) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEntity)
	case e.EntryID == "":
		return fmt.Errorf("%w: entry id is required", ErrInvalidEntity)
	case e.Kind != KindHub && e.Kind != KindNode:
		return fmt.Errorf("%w: kind %q", ErrInvalidEntity, e.Kind)
	case e.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	return nil
}

// sameRegistration reports whether the persisted fields match.
func (e *Entity) sameRegistration(o *Entity) bool {
	return e.EntryID == o.EntryID && e.Kind == o.Kind && e.Name == o.Name && e.Device == o.Device
}

// DeepCopy returns a copy that shares no pointers with e.
func (e *Entity) DeepCopy() *Entity {
	c := *e
	if e.StateUpdatedAt != nil {
		t := *e.StateUpdatedAt
		c.StateUpdatedAt = &t
	}
	return &c
}
