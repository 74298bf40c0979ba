package fleet

import "fmt"

// UnknownModel is the label for model codes outside the known families.
const UnknownModel = "Unknown"

const hubModelCode = "mrd"

// Node model families keyed by the three-character code prefix.
var displaySizes = map[string]string{
	"D29": `2.9"`,
	"D42": `4.2"`,
	"D75": `7.5"`,
}

// HubModelLabel returns the label for a hub model code. Only an exact "mrd"
// is recognised.
func HubModelLabel(code string) string {
	if code == hubModelCode {
		return "SyncSign Hub (mrd)"
	}
	return UnknownModel
}

// NodeModelLabel returns the label for a node model code, keyed on its
// first three characters.
func NodeModelLabel(code string) string {
	if len(code) < 3 {
		return UnknownModel
	}
	size, ok := displaySizes[code[:3]]
	if !ok {
		return UnknownModel
	}
	return fmt.Sprintf("SyncSign %s Display (%s)", size, code)
}
