package orchestrator

import (
	"fmt"
	"strings"

	"github.com/foldersmith/foldersmith/pkg/model"
)

// UsageMessage is the reply to a request that does not name all three
// folders.
const UsageMessage = "Please specify the root, template, and destination folder names."

// Report is the combined outcome of one request across backends.
type Report struct {
	RequestID string               `json:"request_id"`
	Request   model.CloneRequest   `json:"request"`
	Results   []*model.CloneResult `json:"results"`
}

// OK reports whether every backend cloned the template.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// String renders one line per backend in configured order.
func (r *Report) String() string {
	lines := make([]string, len(r.Results))
	for i, res := range r.Results {
		lines[i] = Message(res)
	}
	return strings.Join(lines, "\n")
}

// Message renders the user-facing line for one backend outcome.
func Message(res *model.CloneResult) string {
	backend := res.Backend.DisplayName()
	req := res.Request

	switch res.Status {
	case model.StatusCloned:
		return fmt.Sprintf("%s folder structure cloned! Here is your link: %s", backend, res.Link)
	case model.StatusRootNotFound:
		return fmt.Sprintf("Root folder '%s' not found in %s.", req.RootName, backend)
	case model.StatusTemplateNotFound:
		return fmt.Sprintf("Template folder '%s' not found in %s.", req.TemplateName, backend)
	case model.StatusDestinationExists:
		return fmt.Sprintf("A folder named '%s' already exists in '%s' in %s. Creation canceled.",
			req.DestinationName, req.RootName, backend)
	default:
		msg := fmt.Sprintf("Sorry, I couldn't clone the folder structure in %s.", backend)
		if res.Partial {
			msg += " A partially cloned folder was left in place"
			if res.Link != "" {
				msg += ": " + res.Link
			} else {
				msg += "."
			}
		}
		return msg
	}
}
