package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/sys"
)

// Lister is the part of the download store the status needs.
type Lister interface {
	All() []internal.ProcessSnapshot
}

type Status struct {
	Pending     int    `json:"pending"`
	Downloading int    `json:"downloading"`
	Completed   int    `json:"completed"`
	Errored     int    `json:"errored"`
	Stopped     int    `json:"stopped"`
	FreeSpace   uint64 `json:"free_space,omitempty"`
}

func Summarize(all []internal.ProcessSnapshot) Status {
	var s Status
	for _, p := range all {
		switch p.Progress.Status {
		case internal.StatusPending:
			s.Pending++
		case internal.StatusDownloading:
			s.Downloading++
		case internal.StatusCompleted:
			s.Completed++
		case internal.StatusErrored:
			s.Errored++
		case internal.StatusStopped:
			s.Stopped++
		}
	}
	return s
}

func ApplyRouter(mdb Lister, downloadPath string) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			s := Summarize(mdb.All())
			// unsupported filesystems leave it empty
			s.FreeSpace, _ = sys.FreeSpace(downloadPath)

			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(s); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}
}
