package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Register adds the JSON operations of h to api. Optional trailing path
// segments are separate operations since huma paths have no optional
// parameters.
func Register(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-files",
		Method:      http.MethodGet,
		Path:        "/filelist/{date}",
		Summary:     "List recordings of a date",
		Tags:        []string{"Catalog"},
	}, h.ListFiles)

	huma.Register(api, huma.Operation{
		OperationID: "list-files-frequency",
		Method:      http.MethodGet,
		Path:        "/filelist/{date}/{freq}",
		Summary:     "List recordings of a date and frequency",
		Tags:        []string{"Catalog"},
	}, h.ListFilesFrequency)

	huma.Register(api, huma.Operation{
		OperationID: "list-frequencies",
		Method:      http.MethodGet,
		Path:        "/freqlist/{date}",
		Summary:     "List frequencies recorded on a date",
		Tags:        []string{"Catalog"},
	}, h.ListFrequencies)

	huma.Register(api, huma.Operation{
		OperationID: "prepare-files",
		Method:      http.MethodGet,
		Path:        "/preparefiles/{start}/{duration}",
		Summary:     "Stage the recordings of a time window",
		Description: "Downloads every recording whose key contains one of the window's minute labels into a new workspace.",
		Tags:        []string{"Staging"},
	}, h.PrepareFiles)

	huma.Register(api, huma.Operation{
		OperationID: "prepare-files-frequency",
		Method:      http.MethodGet,
		Path:        "/preparefiles/{start}/{duration}/{freq}",
		Summary:     "Stage the recordings of a time window on one frequency",
		Tags:        []string{"Staging"},
	}, h.PrepareFilesFrequency)

	huma.Register(api, huma.Operation{
		OperationID: "clear-all",
		Method:      http.MethodGet,
		Path:        "/clear",
		Summary:     "Remove every workspace",
		Description: "Not safe while other staging or retrieval requests are in flight.",
		Tags:        []string{"Staging"},
	}, h.ClearAll)

	huma.Register(api, huma.Operation{
		OperationID: "clear-workspace",
		Method:      http.MethodGet,
		Path:        "/clear/{uuid}",
		Summary:     "Remove one workspace",
		Tags:        []string{"Staging"},
	}, h.Clear)
}
