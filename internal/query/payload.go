//nolint:tagliatelle // camelCase is the query service wire format.
package query

import "fmt"

// Sort directions accepted by the query service.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SearchState is the active search driving the grid. Target is the query
// expression understood by the remote service and is never interpreted here.
type SearchState struct {
	Target    string `json:"target"`
	Neighbors int    `json:"neighbors,omitempty"`
}

// SortColumn is one entry of the grid's sort model.
type SortColumn struct {
	ColID string `json:"colId"`
	Sort  string `json:"sort"`
}

// SortModel lists sort columns in priority order. The query service only
// orders by a single column, so only the first entry is sent.
type SortModel []SortColumn

// Validate checks every column has an id and a known direction.
func (m SortModel) Validate() error {
	for i, col := range m {
		if col.ColID == "" {
			return fmt.Errorf("sortModel[%d].colId is required", i)
		}

		if col.Sort != SortAsc && col.Sort != SortDesc {
			return fmt.Errorf("sortModel[%d].sort must be %q or %q, got %q", i, SortAsc, SortDesc, col.Sort)
		}
	}

	return nil
}

// Payload is the request body of the remote query service. It is a
// comparable value so it can be used directly inside cache keys.
type Payload struct {
	Target           string `json:"target"`
	Skip             int    `json:"skip,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	OrderBy          string `json:"orderBy,omitempty"`
	OrderByDirection string `json:"orderByDirection,omitempty"`
	Neighbors        int    `json:"neighbors,omitempty"`
	Count            bool   `json:"count,omitempty"`
}

// BuildPayload maps a search state, a page window and a sort model to a
// query service request body. A count payload asks only for the total row
// count and carries neither paging, ordering nor neighbours.
func BuildPayload(
	state SearchState,
	skip, limit int,
	sort SortModel,
	count bool,
) Payload {
	if count {
		return Payload{
			Target: state.Target,
			Count:  true,
		}
	}

	payload := Payload{
		Target:    state.Target,
		Skip:      skip,
		Limit:     limit,
		Neighbors: state.Neighbors,
	}

	if len(sort) > 0 {
		payload.OrderBy = sort[0].ColID
		payload.OrderByDirection = sort[0].Sort
	}

	return payload
}

// BuildCountPayload is shorthand for a count-only payload.
func BuildCountPayload(state SearchState) Payload {
	return BuildPayload(state, 0, 0, nil, true)
}

// BuildRecordPayload addresses a single record by identifier, the way the
// detail panel looks it up.
func BuildRecordPayload(id string, neighbors int) Payload {
	return Payload{
		Target:    id,
		Neighbors: neighbors,
	}
}
