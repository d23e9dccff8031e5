package browser

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/runnerr0/tabtidy/internal/tabs"
)

//go:embed probe.js
var probeJS string

//go:embed forms.js
var formsJS string

// probeResult is what probe.js reports about a live page.
type probeResult struct {
	Visible bool   `json:"visible"`
	Ready   string `json:"ready"`
	Audible bool   `json:"audible"`
	Favicon string `json:"favicon"`
}

func parseProbe(raw string) (probeResult, error) {
	var p probeResult
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return probeResult{}, fmt.Errorf("browser: decode probe: %w", err)
	}
	return p, nil
}

// apply copies the probed page state onto t.
func (p probeResult) apply(t *tabs.Tab) {
	t.Active = p.Visible
	t.Audible = p.Audible
	t.FaviconURL = p.Favicon
	if p.Ready == "complete" {
		t.Status = tabs.StatusComplete
	} else {
		t.Status = tabs.StatusLoading
	}
}

// newlyVisible returns the ids visible now that were not visible before,
// in ascending order.
func newlyVisible(before, now map[tabs.TabID]bool) []tabs.TabID {
	var out []tabs.TabID
	for id, v := range now {
		if v && !before[id] {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}
