package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/csa/model"
)

// Walking distance in meters between two stops. Edges are
// undirected.
type WalkEdgeCSV struct {
	From     string  `csv:"from_stop_I"`
	To       string  `csv:"to_stop_I"`
	Distance float64 `csv:"d"`
}

func ParseWalkEdges(data io.Reader) (*model.WalkNetwork, error) {
	edgeCsv := []*WalkEdgeCSV{}
	if err := gocsv.Unmarshal(data, &edgeCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling walk edges csv: %w", err)
	}

	walk := model.NewWalkNetwork()
	for i, e := range edgeCsv {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("missing stop (row %d)", i+1)
		}
		if e.Distance < 0 {
			return nil, fmt.Errorf("negative distance %g (row %d)", e.Distance, i+1)
		}
		walk.AddEdge(e.From, e.To, e.Distance)
	}

	return walk, nil
}
